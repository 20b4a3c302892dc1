// Package lexmcp implements the Model Context Protocol (MCP) server core for the
// lexsearch legal-research tools. It provides the JSON-RPC message framing, the
// stateful session registry, the protocol dispatcher, and two transports: the
// stateless streamable HTTP transport (server-sent events) and the persistent
// stdio transport.
//
// Tool implementations live in the tools subpackage and are consumed through the
// ToolRegistry interface; this package treats them as external collaborators.
package lexmcp
