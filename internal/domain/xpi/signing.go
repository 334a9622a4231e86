package xpi

// SignedFile is a single file entry of a signing status payload.
type SignedFile struct {
	DownloadURL string `json:"download_url"`
	Signed      bool   `json:"signed"`
}

// SigningStatus is the payload returned by the signing service for a submitted version.
type SigningStatus struct {
	Files []SignedFile `json:"files"`
}

// Signed reports whether the first file exists and has been signed.
func (s *SigningStatus) Signed() bool {
	if s == nil || len(s.Files) == 0 {
		return false
	}

	return s.Files[0].Signed
}

// SigningState is a step of the signing state machine.
type SigningState int

// Signing states in the order they are reached.
const (
	SigningIdle SigningState = iota
	SigningSkipped
	SigningSubmitted
	SigningPolling
	SigningSigned
	SigningAlreadySigned
	SigningFailed
)

// String implements fmt.Stringer.
func (s SigningState) String() string {
	switch s {
	case SigningIdle:
		return "idle"
	case SigningSkipped:
		return "skipped"
	case SigningSubmitted:
		return "submitted"
	case SigningPolling:
		return "polling"
	case SigningSigned:
		return "signed"
	case SigningAlreadySigned:
		return "already-signed"
	case SigningFailed:
		return "failed"
	default:
		return "unknown"
	}
}
