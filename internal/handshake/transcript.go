package handshake

// buildTranscript reproduces core/handshake.py's signed transcript exactly:
//
//	version(1) || "|pq-drone-gcs:v1|" || session_id || "|" || kem_name ||
//	"|" || sig_name || "|" || kem_pub || "|" || challenge
//
// Both sides must compute byte-identical transcripts for the signature
// check to pass, so every field boundary is an explicit delimiter rather
// than a length prefix.
func buildTranscript(version byte, sessionID, challenge [8]byte, kemName, sigName string, kemPub []byte) []byte {
	const domain = "|pq-drone-gcs:v1|"
	out := make([]byte, 0, 1+len(domain)+8+1+len(kemName)+1+len(sigName)+1+len(kemPub)+1+8)
	out = append(out, version)
	out = append(out, domain...)
	out = append(out, sessionID[:]...)
	out = append(out, '|')
	out = append(out, kemName...)
	out = append(out, '|')
	out = append(out, sigName...)
	out = append(out, '|')
	out = append(out, kemPub...)
	out = append(out, '|')
	out = append(out, challenge[:]...)
	return out
}
