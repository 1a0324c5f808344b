// Package tracking polls the device location of every alert under continuous
// tracking and feeds fresh fixes back into the engine.
package tracking
