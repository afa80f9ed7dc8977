// Package factory instantiates pluggable modules, such as metrics sinks and
// dispatch log stores, from configuration. A module is a type name plus a map
// of raw settings that the registered factory decodes into its own struct.
package factory
