// Package report renders the end-of-run Markdown report: run parameters,
// an outcome table with a mermaid pie chart, and every downloaded
// screenshot with its caption.
package report
