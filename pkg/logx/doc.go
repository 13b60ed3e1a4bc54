// Package logx is the logging layer of standupbot: a value-type Logger over
// zerolog whose sinks (console, JSON file, operator alerts) can be swapped
// at runtime by Service.Apply.
package logx
