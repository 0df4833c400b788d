// Command pbench-index indexes queued pbench result tarballs.
//
// Without a subcommand it runs one indexing pass in the admission mode
// selected by --tool-data and --re-index and exits with the run's status:
//
//	0   success, including runs that skipped tarballs
//	2   configuration file missing or unreadable
//	3   invalid configuration or bad archive roots
//	8   index template definitions failed to load
//	9   the backend refused an index template
//	12  internal error
//
// --dump-index-patterns and --dump-templates print the template set and exit
// without touching the archive. The states subcommand prints a census of the
// workflow states per controller.
package main
