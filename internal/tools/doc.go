// Package tools holds the external capabilities that workflow nodes call:
// an arithmetic calculator, a web search client and an in-memory vector
// index for document retrieval.
package tools
