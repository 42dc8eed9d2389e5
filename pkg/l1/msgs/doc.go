// Package msgs provides the pub/sub message schemas.
package msgs

// Messages are published by the link daemon and consumed by anything
// subscribed to the robot's topics. Every payload is a Typed envelope
// so a subscriber can decode without knowing the topic.
//
// Producer: mcucomms
// Consumer: navigation, monitors
