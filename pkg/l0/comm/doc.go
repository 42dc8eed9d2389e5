// Package comm provides the L0 frame codec.
package comm

// L0 protocol is communicated between the MCU firmware and the host
// over a synchronous serial bus (SPI, host is the bus master).
//
// Every transfer is exactly one fixed-width frame in each direction.
// Byte 0 of a host frame is the opcode, the payload follows and unused
// bytes are zero. Float fields are IEEE-754 single precision, big-endian.
// The MCU prepares the reply for a poll while the poll frame is being
// clocked in, so the reply payload always starts at byte 1.
//
// There is no checksum and no sequence number on the wire: framing is
// given by the chip-select boundary of each transfer.
//
// Producer: host (commands, polls), MCU firmware (replies)
// Consumer: MCU firmware, host
