package qqid

// DefaultClientID is the client id the web client has always identified
// itself with.
const DefaultClientID int64 = 53999199

// Session is the token chain a logged-in client polls with. The login state
// machine fills it in order; it is read-only once polling starts.
type Session struct {
	QRSig      string
	Ptwebqq    string
	Vfwebqq    string
	Uin        int64
	PSessionID string
	ClientID   int64
}

func (s *Session) Ready() bool {
	return s.Ptwebqq != "" && s.Vfwebqq != "" && s.Uin != 0 && s.PSessionID != ""
}
