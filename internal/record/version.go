package record

// Version is the gpsform release version, reported in the sink's User-Agent.
const Version = "0.1.0"
