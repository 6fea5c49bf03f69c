// Package motion holds the pure parts of curtain motion control:
//
//   - Converter: maps motor steps to a percentage of actuated travel and back
//   - Plan: splits a step delta into power-of-two bursts, largest first
//   - Direction and MotionState: the driver enable state and the externally
//     visible movement state derived from it
//
// Nothing in this package performs I/O. The daemon drives these types from
// its control loop and the serial channel encodes them on the wire.
package motion
