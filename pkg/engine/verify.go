package engine

// verify compares the digests computed in HASH_BOTH.
func verify(r *Report) error {
	if r.SourceDigest == "" || r.DestinationDigest == "" {
		return fail(VerificationFailure, "missing digest (source %q, destination %q)", r.SourceDigest, r.DestinationDigest)
	}
	if r.SourceDigest != r.DestinationDigest {
		return fail(VerificationFailure, "destination digest %s does not match source digest %s", r.DestinationDigest, r.SourceDigest)
	}
	return nil
}
