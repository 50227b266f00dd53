package domain

// SessionState enumerates the conversational states of one user's session.
type SessionState string

const (
	StateIdle              SessionState = "idle"
	StateCollectingSource  SessionState = "collecting_photo_source"
	StateCollectingPhotos  SessionState = "collecting_photos"
	StateAwaitingAspect    SessionState = "awaiting_aspect_ratio"
	StateGenerating        SessionState = "generating"
	StateCreatingSet       SessionState = "creating_set"
	StateNamingSet         SessionState = "naming_set"
	StateAwaitingAssistant SessionState = "awaiting_assist_input"
)

// PhotoSource records where the active image set for a generation came from.
type PhotoSource string

const (
	PhotoSourceNone     PhotoSource = "none"
	PhotoSourceFresh    PhotoSource = "fresh"
	PhotoSourceLastUsed PhotoSource = "last_used"
	PhotoSourceSavedSet PhotoSource = "saved_set"
)

// ValidAspectRatios is the fixed set accepted by the aspect-ratio transition.
var ValidAspectRatios = map[string]bool{
	"16:9": true,
	"1:1":  true,
	"9:16": true,
	"4:3":  true,
	"3:4":  true,
	"21:9": true,
}

// Session holds one user's in-flight conversational state. It lives in
// process memory only and is owned exclusively by the orchestrator; it is
// never shared across users.
type Session struct {
	UserID      int64
	State       SessionState
	Prompt      string
	Route       Route
	AspectRatio string
	CreditCost  float64

	// Single photos accumulated outside a grouped transmission.
	SelectedImages []string
	// Grouped transmissions buffered by batch id, flattened in the order
	// batches were first seen once the user signals completion.
	PendingBatches map[string][]string
	BatchOrder     []string

	PhotoSource     PhotoSource
	PhotoSourceName string

	// PendingSetID carries the target set through the side flows.
	PendingSetID int64

	// Epoch increments on every reset so a poll finishing for a superseded
	// session can discard its result.
	Epoch uint64
}

// NewSession returns an idle session for the user.
func NewSession(userID int64) *Session {
	return &Session{
		UserID:         userID,
		State:          StateIdle,
		PendingBatches: map[string][]string{},
	}
}

// BufferPhoto records a photo path, grouped under batchID when non-empty.
func (s *Session) BufferPhoto(batchID, path string) {
	if batchID == "" {
		s.SelectedImages = append(s.SelectedImages, path)
		return
	}
	if _, ok := s.PendingBatches[batchID]; !ok {
		s.BatchOrder = append(s.BatchOrder, batchID)
	}
	s.PendingBatches[batchID] = append(s.PendingBatches[batchID], path)
}

// BufferedCount reports how many photos are buffered across singles and
// grouped transmissions.
func (s *Session) BufferedCount() int {
	n := len(s.SelectedImages)
	for _, batch := range s.PendingBatches {
		n += len(batch)
	}
	return n
}

// FlattenBatches appends all buffered grouped transmissions onto
// SelectedImages, batches in first-seen order, each batch in arrival order.
func (s *Session) FlattenBatches() {
	for _, id := range s.BatchOrder {
		s.SelectedImages = append(s.SelectedImages, s.PendingBatches[id]...)
	}
	s.PendingBatches = map[string][]string{}
	s.BatchOrder = nil
}

// Reset discards all buffers and returns the session to idle. File-zone
// transitions already committed are not undone.
func (s *Session) Reset() {
	s.State = StateIdle
	s.Prompt = ""
	s.AspectRatio = ""
	s.CreditCost = 0
	s.SelectedImages = nil
	s.PendingBatches = map[string][]string{}
	s.BatchOrder = nil
	s.PhotoSource = PhotoSourceNone
	s.PhotoSourceName = ""
	s.PendingSetID = 0
	s.Epoch++
}
