package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"genbot/internal/domain"
	"genbot/internal/genapi"
	"genbot/internal/infra"
	"genbot/internal/ledger"
	"genbot/internal/storage"
)

// Generator is the surface of the generation client the orchestrator needs.
type Generator interface {
	Submit(ctx context.Context, userID int64, route domain.Route, prompt, aspectRatio string, imagePaths []string) (*genapi.Job, error)
	AwaitCompletion(ctx context.Context, job *genapi.Job) genapi.Outcome
	Download(ctx context.Context, imageURL string) ([]byte, error)
}

// PromptAssistant pre-fills the prompt from free-form intent text.
type PromptAssistant interface {
	GeneratePrompt(ctx context.Context, description string) (string, error)
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Users     domain.UserRepository
	Actions   domain.ActionRepository
	Sets      domain.ImageSetRepository
	Ledger    *ledger.Ledger
	Store     *storage.ZoneStore
	Generator Generator
	Assist    PromptAssistant
	Transport Transport
	Logger    *infra.Logger
}

// Orchestrator drives one conversational state machine per user. Sessions
// live in memory; a restart of the process clears buffers but never touches
// balances or files already placed in zones.
type Orchestrator struct {
	users     domain.UserRepository
	actions   domain.ActionRepository
	sets      domain.ImageSetRepository
	ledger    *ledger.Ledger
	store     *storage.ZoneStore
	generator Generator
	assist    PromptAssistant
	transport Transport
	resolver  *Resolver
	logger    *infra.Logger

	mu       sync.Mutex
	sessions map[int64]*domain.Session
	locks    map[int64]*sync.Mutex
}

var titleCaser = cases.Title(language.English)

// New constructs the orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		users:     opts.Users,
		actions:   opts.Actions,
		sets:      opts.Sets,
		ledger:    opts.Ledger,
		store:     opts.Store,
		generator: opts.Generator,
		assist:    opts.Assist,
		transport: opts.Transport,
		resolver:  NewResolver(opts.Store, opts.Sets, opts.Logger),
		logger:    opts.Logger,
		sessions:  map[int64]*domain.Session{},
		locks:     map[int64]*sync.Mutex{},
	}
}

// Session returns the live session for the user, creating an idle one on
// first contact.
func (o *Orchestrator) Session(userID int64) *domain.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[userID]
	if !ok {
		s = domain.NewSession(userID)
		o.sessions[userID] = s
	}
	return s
}

// userLock returns the serialization lock for one user's events.
func (o *Orchestrator) userLock(externalID int64) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[externalID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[externalID] = lock
	}
	return lock
}

// Handle processes one inbound event to completion. Events of the same user
// are serialized; the lock is released while a generation polls so commands
// like /restart apply immediately, and the superseded poll result is then
// discarded by the epoch check.
func (o *Orchestrator) Handle(ctx context.Context, ev Event) {
	lock := o.userLock(ev.ExternalID)
	lock.Lock()
	defer lock.Unlock()

	user, err := o.users.GetOrCreateByExternalID(ctx, ev.ExternalID, ev.Username)
	if err != nil {
		o.logger.Error().Err(err).Int64("external_id", ev.ExternalID).Msg("orchestrator: user lookup failed")
		return
	}
	session := o.Session(user.ID)

	switch ev.Kind {
	case EventCommand:
		o.handleCommand(ctx, user, session, ev)
	case EventButton:
		o.handleButton(ctx, user, session, ev)
	case EventPhoto:
		o.handlePhoto(ctx, user, session, ev)
	case EventText:
		o.handleText(ctx, user, session, ev)
	}
}

func (o *Orchestrator) handleCommand(ctx context.Context, user *domain.User, session *domain.Session, ev Event) {
	switch ev.Command {
	case "start":
		o.sendText(ctx, user.ExternalID, fmt.Sprintf(
			"Welcome! Send a text prompt to generate an image. Balance: %.0f credits.", user.Credits))
	case "restart":
		session.Reset()
		o.sendText(ctx, user.ExternalID, "Session cleared. Send a prompt to start over.")
	case "balance":
		o.sendText(ctx, user.ExternalID, fmt.Sprintf("Balance: %.0f credits.", user.Credits))
	case "history":
		o.sendHistory(ctx, user)
	case "request_credits":
		if _, err := o.ledger.RequestCredits(ctx, user.ID); err != nil {
			o.logger.Error().Err(err).Int64("user_id", user.ID).Msg("orchestrator: credit request failed")
			o.sendText(ctx, user.ExternalID, "Could not open a credit request, try again later.")
			return
		}
		o.sendText(ctx, user.ExternalID, "Credit request sent. An operator will review it.")
	case "route":
		o.sendButtons(ctx, user.ExternalID, "Choose a generation route:", []Button{
			{Label: routeDisplayName(domain.RouteSeedream), Token: "route:" + string(domain.RouteSeedream)},
			{Label: routeDisplayName(domain.RouteNanoBanana), Token: "route:" + string(domain.RouteNanoBanana)},
		})
	case "newset":
		session.Reset()
		session.State = domain.StateNamingSet
		o.sendText(ctx, user.ExternalID, fmt.Sprintf("Send a name for the new set (up to %d characters).", domain.MaxSetNameLen))
	case "mysets":
		o.sendSetList(ctx, user)
	case "done":
		o.handleDone(ctx, user, session)
	case "prompt_help":
		if o.assist == nil {
			o.sendText(ctx, user.ExternalID, "The prompt assistant is not configured.")
			return
		}
		session.Reset()
		session.State = domain.StateAwaitingAssistant
		o.sendText(ctx, user.ExternalID, "Describe what you want to see and I will draft a prompt.")
	default:
		o.sendText(ctx, user.ExternalID, "Unknown command.")
	}
}

func (o *Orchestrator) handleButton(ctx context.Context, user *domain.User, session *domain.Session, ev Event) {
	token := ev.Token
	switch {
	case token == "src:last":
		o.chooseLastUsed(ctx, user, session)
	case strings.HasPrefix(token, "src:set:"):
		o.chooseSavedSet(ctx, user, session, strings.TrimPrefix(token, "src:set:"))
	case token == "src:fresh":
		if session.State != domain.StateCollectingSource {
			return
		}
		session.PhotoSource = domain.PhotoSourceFresh
		session.State = domain.StateCollectingPhotos
		o.sendText(ctx, user.ExternalID, fmt.Sprintf(
			"Send up to %d photos, then /done. Or /done right away to go without photos.",
			session.Route.MaxReferenceImages()))
	case token == "src:skip":
		if session.State != domain.StateCollectingSource && session.State != domain.StateCollectingPhotos {
			return
		}
		session.PhotoSource = domain.PhotoSourceNone
		o.askAspectRatio(ctx, user, session)
	case token == "photos:done":
		o.handleDone(ctx, user, session)
	case strings.HasPrefix(token, "ar:"):
		o.chooseAspectRatio(ctx, user, session, strings.TrimPrefix(token, "ar:"))
	case strings.HasPrefix(token, "route:"):
		route := domain.NormalizeRoute(strings.TrimPrefix(token, "route:"))
		if err := o.users.SetSelectedRoute(ctx, user.ID, route); err != nil {
			o.logger.Error().Err(err).Int64("user_id", user.ID).Msg("orchestrator: route update failed")
			return
		}
		o.sendText(ctx, user.ExternalID, fmt.Sprintf("Route set to %s.", routeDisplayName(route)))
	case strings.HasPrefix(token, "set:del:"):
		o.deleteSet(ctx, user, strings.TrimPrefix(token, "set:del:"))
	}
}

func (o *Orchestrator) handleText(ctx context.Context, user *domain.User, session *domain.Session, ev Event) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}
	switch session.State {
	case domain.StateIdle:
		o.beginPromptFlow(ctx, user, session, text)
	case domain.StateNamingSet:
		o.createSet(ctx, user, session, text)
	case domain.StateAwaitingAssistant:
		o.runPromptAssist(ctx, user, session, text)
	case domain.StateAwaitingAspect:
		o.chooseAspectRatio(ctx, user, session, text)
	default:
		o.sendText(ctx, user.ExternalID, "Finish the current step first, or /restart.")
	}
}

func (o *Orchestrator) handlePhoto(ctx context.Context, user *domain.User, session *domain.Session, ev Event) {
	switch session.State {
	case domain.StateCollectingPhotos:
		o.collectPhoto(ctx, user, session, ev)
	case domain.StateCreatingSet:
		o.addSetPhoto(ctx, user, session, ev)
	default:
		o.sendText(ctx, user.ExternalID, "Send a prompt first, then attach photos when asked.")
	}
}

// beginPromptFlow gates on balance and routes the user to a photo source
// choice. Insufficient credits leave the session untouched and write no
// action record.
func (o *Orchestrator) beginPromptFlow(ctx context.Context, user *domain.User, session *domain.Session, prompt string) {
	if !o.ledger.CanAfford(user) {
		o.logger.Debug().Err(domain.ErrInsufficientCredits).Int64("user_id", user.ID).
			Float64("credits", user.Credits).Msg("orchestrator: prompt flow refused")
		o.sendText(ctx, user.ExternalID, fmt.Sprintf(
			"Insufficient credits: a generation costs %.0f, you have %.0f. Use /request_credits.",
			o.ledger.Cost(), user.Credits))
		return
	}
	session.Prompt = prompt
	session.Route = domain.NormalizeRoute(string(user.SelectedRoute))
	session.CreditCost = o.ledger.Cost()

	buttons := o.sourceButtons(ctx, user)
	if len(buttons) == 0 {
		session.PhotoSource = domain.PhotoSourceFresh
		session.State = domain.StateCollectingPhotos
		o.sendButtons(ctx, user.ExternalID, fmt.Sprintf(
			"Send up to %d reference photos, then /done. Or skip photos.",
			session.Route.MaxReferenceImages()),
			[]Button{{Label: "Skip photos", Token: "src:skip"}})
		return
	}
	session.State = domain.StateCollectingSource
	buttons = append(buttons,
		Button{Label: "Upload new photos", Token: "src:fresh"},
		Button{Label: "No photos", Token: "src:skip"})
	o.sendButtons(ctx, user.ExternalID, "Where should the reference photos come from?", buttons)
}

// sourceButtons offers last-used and saved-set sources when they exist.
func (o *Orchestrator) sourceButtons(ctx context.Context, user *domain.User) []Button {
	var buttons []Button
	if recent, err := o.store.ListRecent(user.ID); err == nil && len(recent) > 0 {
		buttons = append(buttons, Button{Label: "Reuse last photos", Token: "src:last"})
	}
	sets, err := o.sets.ListByOwner(ctx, user.ID)
	if err != nil {
		o.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("orchestrator: set listing failed")
		return buttons
	}
	for _, set := range sets {
		images, err := o.sets.ListImages(ctx, set.ID)
		if err != nil || len(images) == 0 {
			continue
		}
		buttons = append(buttons, Button{
			Label: fmt.Sprintf("Set: %s (%d)", set.Name, len(images)),
			Token: "src:set:" + strconv.FormatInt(set.ID, 10),
		})
	}
	return buttons
}

func (o *Orchestrator) chooseLastUsed(ctx context.Context, user *domain.User, session *domain.Session) {
	if session.State != domain.StateCollectingSource {
		return
	}
	paths, err := o.store.ListRecent(user.ID)
	if err != nil || len(paths) == 0 {
		o.sendText(ctx, user.ExternalID, "No previous photos found, send new ones.")
		session.PhotoSource = domain.PhotoSourceFresh
		session.State = domain.StateCollectingPhotos
		return
	}
	session.PhotoSource = domain.PhotoSourceLastUsed
	o.askAspectRatio(ctx, user, session)
}

func (o *Orchestrator) chooseSavedSet(ctx context.Context, user *domain.User, session *domain.Session, rawID string) {
	if session.State != domain.StateCollectingSource {
		return
	}
	setID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return
	}
	if _, err := o.sets.GetByID(ctx, setID, user.ID); err != nil {
		o.sendText(ctx, user.ExternalID, "That set no longer exists.")
		return
	}
	paths, err := o.resolver.AdoptSet(ctx, user.ID, setID)
	if err != nil {
		o.logger.Error().Err(err).Int64("set_id", setID).Msg("orchestrator: set adoption failed")
		o.sendText(ctx, user.ExternalID, "Could not load that set, try another source.")
		return
	}
	session.PhotoSource = domain.PhotoSourceSavedSet
	session.PendingSetID = setID
	session.SelectedImages = paths
	o.askAspectRatio(ctx, user, session)
}

// collectPhoto buffers one photo, enforcing the route's reference cap. An
// over-limit photo is rejected and the transition is not taken.
func (o *Orchestrator) collectPhoto(ctx context.Context, user *domain.User, session *domain.Session, ev Event) {
	max := session.Route.MaxReferenceImages()
	if session.BufferedCount() >= max {
		o.sendText(ctx, user.ExternalID, fmt.Sprintf(
			"Photo limit reached: %d/%d. Press /done to continue.", max, max))
		return
	}
	path, err := o.store.SaveIncoming(user.ID, ev.Photo, ev.PhotoName)
	if err != nil {
		o.logger.Error().Err(err).Int64("user_id", user.ID).Msg("orchestrator: photo save failed")
		o.sendText(ctx, user.ExternalID, "Could not save that photo, try again.")
		return
	}
	session.PhotoSource = domain.PhotoSourceFresh
	session.BufferPhoto(ev.BatchID, path)
	o.sendText(ctx, user.ExternalID, fmt.Sprintf("Photo accepted: %d/%d.", session.BufferedCount(), max))
}

func (o *Orchestrator) handleDone(ctx context.Context, user *domain.User, session *domain.Session) {
	switch session.State {
	case domain.StateCollectingPhotos:
		if session.BufferedCount() == 0 {
			session.PhotoSource = domain.PhotoSourceNone
		}
		o.askAspectRatio(ctx, user, session)
	case domain.StateCreatingSet:
		setID := session.PendingSetID
		session.Reset()
		o.sendText(ctx, user.ExternalID, fmt.Sprintf("Set saved (#%d). Pick it as a photo source next time.", setID))
	default:
		o.sendText(ctx, user.ExternalID, "Nothing to finish right now.")
	}
}

func (o *Orchestrator) askAspectRatio(ctx context.Context, user *domain.User, session *domain.Session) {
	session.State = domain.StateAwaitingAspect
	buttons := make([]Button, 0, len(aspectRatioOrder))
	for _, ratio := range aspectRatioOrder {
		buttons = append(buttons, Button{Label: ratio, Token: "ar:" + ratio})
	}
	o.sendButtons(ctx, user.ExternalID, "Choose an aspect ratio:", buttons)
}

var aspectRatioOrder = []string{"16:9", "1:1", "9:16", "4:3", "3:4", "21:9"}

// chooseAspectRatio validates the ratio against the fixed set. Invalid
// values are refused without a state change.
func (o *Orchestrator) chooseAspectRatio(ctx context.Context, user *domain.User, session *domain.Session, ratio string) {
	if session.State != domain.StateAwaitingAspect {
		return
	}
	ratio = strings.TrimSpace(ratio)
	if !domain.ValidAspectRatios[ratio] {
		o.sendText(ctx, user.ExternalID, fmt.Sprintf(
			"Unsupported aspect ratio %q. Pick one of: %s.", ratio, strings.Join(aspectRatioOrder, ", ")))
		return
	}
	session.AspectRatio = ratio
	session.State = domain.StateGenerating
	o.sendText(ctx, user.ExternalID, "Generating, this can take a few minutes...")
	o.runGeneration(ctx, user, session)
}

// runGeneration is the one transition that performs external calls. Every
// terminal outcome appends an action record, settles credits on success
// only, and returns the session to idle. A result arriving for a superseded
// session (restart during polling) is discarded.
func (o *Orchestrator) runGeneration(ctx context.Context, user *domain.User, session *domain.Session) {
	epoch := session.Epoch
	route := session.Route
	prompt := session.Prompt

	images, err := o.resolver.Resolve(ctx, session)
	if err != nil {
		o.finishGeneration(ctx, user, session, images, nil, err)
		return
	}

	job, err := o.generator.Submit(ctx, user.ID, route, prompt, session.AspectRatio, images)
	if err != nil {
		o.finishGeneration(ctx, user, session, images, nil, err)
		return
	}

	// Polling can take minutes. Release the user's lock so other events are
	// handled meanwhile; anything that resets the session bumps the epoch
	// and the late result is dropped below.
	lock := o.userLock(user.ExternalID)
	lock.Unlock()
	outcome := o.generator.AwaitCompletion(ctx, job)
	lock.Lock()
	if session.Epoch != epoch {
		o.logger.Info().Int64("user_id", user.ID).Msg("orchestrator: stale generation result discarded")
		return
	}
	if outcome.Kind != genapi.OutcomeCompleted {
		o.finishGeneration(ctx, user, session, images, outcome.Payload, outcome.Err)
		return
	}

	url, err := outcome.ResultURL()
	if err != nil {
		o.finishGeneration(ctx, user, session, images, outcome.Payload, err)
		return
	}
	data, err := o.generator.Download(ctx, url)
	if err != nil {
		o.finishGeneration(ctx, user, session, images, outcome.Payload, err)
		return
	}
	resultPath, err := o.store.PersistGenerated(user.ID, data, prompt, route)
	if err != nil {
		o.finishGeneration(ctx, user, session, images, outcome.Payload, err)
		return
	}

	o.finishGeneration(ctx, user, session, images, outcome.Payload, nil)
	o.sendPhoto(ctx, user.ExternalID, resultPath, prompt)
	// The photo goes out recompressed by the transport; the document carries
	// the file as generated.
	o.sendDocument(ctx, user.ExternalID, resultPath)
}

// finishGeneration is the single terminal handler: record, settle, rotate
// fresh photos into the recent zone, reset to idle, and tell the user what
// happened.
func (o *Orchestrator) finishGeneration(ctx context.Context, user *domain.User, session *domain.Session, images []string, payload map[string]any, genErr error) {
	succeeded := genErr == nil
	route := session.Route
	fresh := session.PhotoSource == domain.PhotoSourceFresh

	requestData, _ := json.Marshal(map[string]any{
		"prompt":       session.Prompt,
		"aspect_ratio": session.AspectRatio,
		"images":       len(images),
		"source":       string(session.PhotoSource),
	})
	responseData := []byte(`{}`)
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			responseData = raw
		}
	} else if genErr != nil {
		responseData, _ = json.Marshal(map[string]string{"error": genErr.Error()})
	}

	if err := o.ledger.RecordAttempt(ctx, user.ID, route, requestData, responseData, succeeded); err != nil {
		o.logger.Error().Err(err).Int64("user_id", user.ID).Msg("orchestrator: attempt not recorded")
	}
	balance, err := o.ledger.Settle(ctx, user.ID, succeeded)
	if err != nil {
		o.logger.Error().Err(err).Int64("user_id", user.ID).Msg("orchestrator: settlement failed")
		balance = user.Credits
	}

	if fresh && len(images) > 0 {
		if _, err := o.store.AdoptIntoRecent(user.ID, images); err != nil {
			o.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("orchestrator: recent-zone rotation failed")
		}
	}

	session.Reset()

	if succeeded {
		o.sendText(ctx, user.ExternalID, fmt.Sprintf("Done! %.0f credits spent, %.0f left.", o.ledger.Cost(), balance))
		return
	}
	o.logger.Warn().Err(genErr).Int64("user_id", user.ID).Str("route", string(route)).Msg("orchestrator: generation attempt failed")
	o.sendText(ctx, user.ExternalID, failureMessage(genErr))
}

// failureMessage maps terminal errors to short user-facing text without
// echoing upstream payloads.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrContentBlocked):
		return "The request was blocked by the content filter. No credits were spent."
	case errors.Is(err, domain.ErrJobCanceled):
		return "The generation was canceled upstream. No credits were spent."
	case errors.Is(err, domain.ErrPollTimeout):
		return "The generation timed out. No credits were spent, try again."
	case errors.Is(err, domain.ErrResultShapeUnrecognized):
		return "The backend returned an unreadable result. No credits were spent."
	case errors.Is(err, domain.ErrPhotoLimitExceeded):
		return "Too many reference photos for this route. No credits were spent."
	default:
		return "The generation failed. No credits were spent, try again later."
	}
}

func (o *Orchestrator) runPromptAssist(ctx context.Context, user *domain.User, session *domain.Session, description string) {
	prompt, err := o.assist.GeneratePrompt(ctx, description)
	if err != nil {
		o.logger.Warn().Err(err).Int64("user_id", user.ID).Msg("orchestrator: prompt assist failed")
		session.Reset()
		o.sendText(ctx, user.ExternalID, "The prompt assistant is unavailable right now; send your own prompt.")
		return
	}
	session.State = domain.StateIdle
	o.sendText(ctx, user.ExternalID, "Drafted prompt:\n\n"+prompt)
	o.beginPromptFlow(ctx, user, session, prompt)
}

func (o *Orchestrator) createSet(ctx context.Context, user *domain.User, session *domain.Session, name string) {
	if len(name) > domain.MaxSetNameLen {
		o.sendText(ctx, user.ExternalID, fmt.Sprintf("That name is too long, limit is %d characters.", domain.MaxSetNameLen))
		return
	}
	set, err := o.sets.Create(ctx, user.ID, name)
	if err != nil {
		o.logger.Error().Err(err).Int64("user_id", user.ID).Msg("orchestrator: set creation failed")
		o.sendText(ctx, user.ExternalID, "Could not create the set, try again.")
		return
	}
	session.State = domain.StateCreatingSet
	session.PendingSetID = set.ID
	o.sendText(ctx, user.ExternalID, fmt.Sprintf("Set %q created. Send its photos, then /done.", set.Name))
}

func (o *Orchestrator) addSetPhoto(ctx context.Context, user *domain.User, session *domain.Session, ev Event) {
	path, err := o.store.SaveIncoming(user.ID, ev.Photo, ev.PhotoName)
	if err != nil {
		o.logger.Error().Err(err).Int64("user_id", user.ID).Msg("orchestrator: set photo save failed")
		o.sendText(ctx, user.ExternalID, "Could not save that photo, try again.")
		return
	}
	dest, err := o.store.AdoptIntoSet(user.ID, session.PendingSetID, path)
	if err != nil {
		o.logger.Error().Err(err).Int64("set_id", session.PendingSetID).Msg("orchestrator: set adoption failed")
		o.sendText(ctx, user.ExternalID, "Could not file that photo into the set.")
		return
	}
	hash, err := storage.HashFile(dest)
	if err != nil {
		o.logger.Warn().Err(err).Str("path", dest).Msg("orchestrator: set photo hash failed")
	}
	if _, err := o.sets.AddImage(ctx, session.PendingSetID, dest, hash); err != nil {
		o.logger.Error().Err(err).Int64("set_id", session.PendingSetID).Msg("orchestrator: set image not persisted")
		o.sendText(ctx, user.ExternalID, "Could not record that photo, try again.")
		return
	}
	o.sendText(ctx, user.ExternalID, "Added to the set. Send more or /done.")
}

func (o *Orchestrator) deleteSet(ctx context.Context, user *domain.User, rawID string) {
	setID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return
	}
	images, err := o.sets.ListImages(ctx, setID)
	if err != nil {
		o.logger.Error().Err(err).Int64("set_id", setID).Msg("orchestrator: set image listing failed")
		return
	}
	paths := make([]string, 0, len(images))
	for _, img := range images {
		paths = append(paths, img.FilePath)
	}
	if _, err := o.store.Archive(user.ID, paths); err != nil {
		o.logger.Warn().Err(err).Int64("set_id", setID).Msg("orchestrator: set files not archived")
	}
	if err := o.sets.Delete(ctx, setID, user.ID); err != nil {
		o.logger.Error().Err(err).Int64("set_id", setID).Msg("orchestrator: set deletion failed")
		o.sendText(ctx, user.ExternalID, "Could not delete that set.")
		return
	}
	o.sendText(ctx, user.ExternalID, "Set deleted; its photos were archived.")
}

func (o *Orchestrator) sendSetList(ctx context.Context, user *domain.User) {
	sets, err := o.sets.ListByOwner(ctx, user.ID)
	if err != nil {
		o.logger.Error().Err(err).Int64("user_id", user.ID).Msg("orchestrator: set listing failed")
		return
	}
	if len(sets) == 0 {
		o.sendText(ctx, user.ExternalID, "You have no saved sets yet. Create one with /newset.")
		return
	}
	var b strings.Builder
	b.WriteString("Your saved sets:\n")
	buttons := make([]Button, 0, len(sets))
	for _, set := range sets {
		fmt.Fprintf(&b, "#%d %s\n", set.ID, set.Name)
		buttons = append(buttons, Button{
			Label: "Delete " + set.Name,
			Token: "set:del:" + strconv.FormatInt(set.ID, 10),
		})
	}
	o.sendButtons(ctx, user.ExternalID, b.String(), buttons)
}

func (o *Orchestrator) sendHistory(ctx context.Context, user *domain.User) {
	records, err := o.actions.ListByUser(ctx, user.ID, 10, 0)
	if err != nil {
		o.logger.Error().Err(err).Int64("user_id", user.ID).Msg("orchestrator: history lookup failed")
		return
	}
	if len(records) == 0 {
		o.sendText(ctx, user.ExternalID, "No activity yet.")
		return
	}
	var b strings.Builder
	b.WriteString("Recent activity:\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "%s  %s  -%.0f\n", rec.CreatedAt.Format("2006-01-02 15:04"), rec.ActionType, rec.CreditsSpent)
	}
	o.sendText(ctx, user.ExternalID, b.String())
}

func routeDisplayName(route domain.Route) string {
	return titleCaser.String(string(route))
}

// Send helpers: transport failures are logged and never crash the session.

func (o *Orchestrator) sendText(ctx context.Context, externalID int64, text string) {
	if err := o.transport.SendText(ctx, externalID, text); err != nil {
		o.logger.Warn().Err(err).Int64("external_id", externalID).Msg("orchestrator: text send failed")
	}
}

func (o *Orchestrator) sendButtons(ctx context.Context, externalID int64, text string, buttons []Button) {
	if err := o.transport.SendButtons(ctx, externalID, text, buttons); err != nil {
		o.logger.Warn().Err(err).Int64("external_id", externalID).Msg("orchestrator: buttons send failed")
	}
}

func (o *Orchestrator) sendPhoto(ctx context.Context, externalID int64, path, caption string) {
	if err := o.transport.SendPhoto(ctx, externalID, path, caption); err != nil {
		o.logger.Warn().Err(err).Int64("external_id", externalID).Msg("orchestrator: photo send failed")
	}
}

func (o *Orchestrator) sendDocument(ctx context.Context, externalID int64, path string) {
	if err := o.transport.SendDocument(ctx, externalID, path); err != nil {
		o.logger.Warn().Err(err).Int64("external_id", externalID).Msg("orchestrator: document send failed")
	}
}
