package model

// Aggregator defines the common interface for a packet processing engine.
type Aggregator interface {
	// Start launches the processing workers.
	Start()

	// Stop gracefully shuts down the aggregator, ensuring all data is processed or flushed.
	Stop()

	// Input returns the channel to which packets should be sent for processing.
	Input() chan<- *PacketInfo
}
