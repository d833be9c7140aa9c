// Command notebookd runs the paper-to-notebook HTTP service.
//
// Configuration is read from $NOTEBOOK_CONFIG or the default locations
// searched by config.Load, after loading a .env file from the working
// directory when one exists. The process stops on SIGINT or SIGTERM after
// open event streams and in-flight jobs drain.
package main
