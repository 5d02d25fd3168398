package hci

import "time"

const (
	// Num_HCI_Command_Packets before the controller reported its own [Vol 4, Part E, 4.4].
	initialCommandCredits = 1

	// emergency timeout for synchronous commands; a controller normally answers within
	// milliseconds, so expiry means the link is broken.
	defaultCommandTimeout = 3 * time.Second
)
