// Package common holds the pieces shared by the library and the command line
// interface: the logger factory installed into dragonboat's logger registry and
// the configuration struct of the store.
//
// Loggers:
//
// Every package obtains a named logger with logger.GetLogger at package level
// ("store", "relational", "migrate", "cmd"). InitLoggers installs CreateLogger
// as the global factory and sets the level of all of them. The output format is
//
//	2024/05/01 12:00:00 INFO  | store      | message
//
// Configuration:
//
// StoreConfig selects the backend of the process and carries the parameters of
// both adapters. It is filled once by the composition root (cmd/util) from flags,
// environment variables and .env files, and validated before any store is built.
package common
