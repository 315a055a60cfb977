// Package link frames packets over a raw byte stream such as a serial
// port, providing the ready signal of a Transport.
package link

// Both peers run the same protocol. A peer starts by sending a sync
// request (0xff followed by its next sequence number) and the other side
// answers with a sync ack (0xfe and its sequence number). Once synced,
// each packet is encoded as
//
//	seq len data... sum
//
// where seq increments per packet (1..0xef, wrapping to 1), len is the
// data length (0..0xef) and sum the XOR of all the preceding bytes of
// the packet. An out of order sequence, an invalid length or a checksum
// mismatch drops the stream back to syncing.
