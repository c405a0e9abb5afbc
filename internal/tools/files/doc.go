// Package files provides tools for managing project folders and output files.
//
// This package implements the project lifecycle tools: creating project
// folders, listing them, listing the files inside one, and deleting a single
// file. Project folders group the files that the query tools write, so an
// agent can keep the artifacts of one analysis together and clean them up
// afterwards.
//
// # Security Model
//
// Every name an agent supplies is sanitized before touching the filesystem,
// and every resulting path is verified to resolve inside the configured
// output root. Deletion is restricted to regular files directly inside a
// project folder; directories and anything reached through ".." or a
// symlink are refused. Error messages returned to agents never contain
// absolute paths.
//
// Servers running in read-only mode refuse the create and delete tools, and
// projects on the restricted list are rejected before any store call.
//
// # Usage Examples
//
// Create a project folder:
//
//	{
//	  "name": "earnings-q3"
//	}
//
// List the CSV files in it:
//
//	{
//	  "project": "earnings-q3",
//	  "pattern": "*.csv"
//	}
//
// Delete one file:
//
//	{
//	  "project": "earnings-q3",
//	  "filename": "quotes_20260825_143000.csv"
//	}
package files
