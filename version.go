package pagesnap

const Version = "v0.1.0"
