package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/internal/contact"
	"github.com/brandon/mailsync/internal/conversation"
	"github.com/brandon/mailsync/internal/filter"
	"github.com/brandon/mailsync/internal/imapmail"
	"github.com/brandon/mailsync/internal/message"
	"github.com/brandon/mailsync/internal/record"
	"github.com/brandon/mailsync/pkg/types"
)

// JobNameGetMessages is the job key guarding ingestion runs.
const JobNameGetMessages = "getMessages"

// heartbeatEvery is how many records a pass examines between run
// heartbeat refreshes. Large folders would otherwise let the
// heartbeat go stale mid-pass and the run get superseded.
const heartbeatEvery = 25

// ProgressFunc receives per-folder progress events. It decouples
// progress reporting from the control flow; pass nil to ignore.
type ProgressFunc func(folder, stage string, processed int)

// MailboxState is the persisted per-account document: the ownership
// address list, grown as Delivered-To addresses are observed. It is
// written together with watermark advancement, under the run-lock.
type MailboxState struct {
	Name         string    `json:"name"`
	AllAddresses []string  `json:"all_addresses"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Orchestrator drives the per-mailbox ingestion loop: folders are
// processed sequentially, each in two passes (header overview first,
// then full messages), with watermarks advanced only after durable
// stores.
type Orchestrator struct {
	account  *config.AccountConfig
	mailbox  *config.MailboxConfig
	conn     imapmail.Connection
	store    record.Store
	parser   *message.Parser
	contacts *contact.Resolver
	convs    *conversation.Engine
	filters  *filter.Engine
	lock     *RunLock
	logger   *logrus.Logger
	progress ProgressFunc

	owned      map[string]bool
	ownedDirty bool
}

// NewOrchestrator wires an ingestion pipeline for one account.
func NewOrchestrator(
	account *config.AccountConfig,
	mailbox *config.MailboxConfig,
	conn imapmail.Connection,
	store record.Store,
	parser *message.Parser,
	contacts *contact.Resolver,
	convs *conversation.Engine,
	filters *filter.Engine,
	lock *RunLock,
	logger *logrus.Logger,
	progress ProgressFunc,
) *Orchestrator {
	return &Orchestrator{
		account:  account,
		mailbox:  mailbox,
		conn:     conn,
		store:    store,
		parser:   parser,
		contacts: contacts,
		convs:    convs,
		filters:  filters,
		lock:     lock,
		logger:   logger,
		progress: progress,
	}
}

// GetMessages runs one full ingestion pass over all declared folders
// and returns the aggregate report. A run already in flight for this
// mailbox aborts immediately with no side effects.
func (o *Orchestrator) GetMessages() (*types.SyncReport, error) {
	runID, ok, err := o.lock.Acquire(JobNameGetMessages, o.account.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sync already running for mailbox %s", o.account.Name)
	}

	report := &types.SyncReport{
		RunID:     runID,
		Account:   o.account.Name,
		StartedAt: time.Now(),
	}

	status := "ok"
	defer func() {
		report.FinishedAt = time.Now()
		if err := o.lock.Release(JobNameGetMessages, o.account.Name, runID, status, report); err != nil {
			o.logger.WithError(err).Error("Failed to release run lock")
		}
	}()

	if err := o.loadOwnedAddresses(); err != nil {
		report.Errors = append(report.Errors, err.Error())
	}

	if err := o.conn.Connect(); err != nil {
		status = "connection failed"
		report.Errors = append(report.Errors, err.Error())
		return report, err
	}
	defer o.conn.Close()

	for i := range o.mailbox.Folders {
		folder := &o.mailbox.Folders[i]

		if err := o.syncFolder(folder, runID, report); err != nil {
			report.Errors = append(report.Errors, err.Error())

			var connErr *types.ConnectionError
			if errors.As(err, &connErr) {
				// Fatal for this mailbox: abort remaining folders.
				status = "connection lost"
				return report, nil
			}
			// Per-folder errors (uidvalidity change among them) skip
			// only this folder.
			o.logger.WithError(err).WithField("folder", folder.Path).Warn("Folder sync failed")
		}
	}

	o.logger.WithFields(logrus.Fields{
		"account":       o.account.Name,
		"headers":       report.NewHeaders,
		"messages":      report.NewMessages,
		"contacts":      report.NewContacts,
		"conversations": report.NewConversations,
	}).Info("Sync finished")

	return report, nil
}

// GetFolders lists the folders on the server, independent of ingestion.
func (o *Orchestrator) GetFolders() ([]types.FolderInfo, error) {
	return o.conn.ListFolders()
}

// GetInfo reports the live status of one folder.
func (o *Orchestrator) GetInfo(folder string) (*types.MailboxStatus, error) {
	return o.conn.Status(folder)
}

// syncFolder runs the two-pass ingestion for one folder. The header
// pass completes fully before the message pass starts, because the
// message range computation depends on the header pass bookkeeping.
func (o *Orchestrator) syncFolder(folder *config.FolderConfig, runID string, report *types.SyncReport) error {
	state, err := o.loadFolderState(folder)
	if err != nil {
		return err
	}

	status, err := o.conn.Status(folder.Path)
	if err != nil {
		return err
	}

	specs, err := ResolveRange(state, status, o.conn, o.account.FetchBody)
	if err != nil {
		return err
	}

	state.UIDValidity = status.UIDValidity

	if specs.Header != "" {
		if err := o.headerPass(folder, state, specs.Header, runID, report); err != nil {
			return err
		}
	}

	o.touch(runID)

	if specs.Message != "" {
		if err := o.messagePass(folder, state, specs.Message, runID, report); err != nil {
			return err
		}
	}

	return o.saveFolderState(state)
}

// touch refreshes the run heartbeat so a long pass is not mistaken
// for a dead run and superseded.
func (o *Orchestrator) touch(runID string) {
	if err := o.lock.Touch(JobNameGetMessages, o.account.Name, runID); err != nil {
		o.logger.WithError(err).Warn("Failed to refresh run heartbeat")
	}
}

// headerPass imports the lightweight overview records in ascending UID
// order, advancing the header watermark after each durable store. Once
// any store fails, later UIDs are still processed and reported but the
// watermark stays below the failed UID, so the next run re-fetches it
// through the idempotent merge path.
func (o *Orchestrator) headerPass(folder *config.FolderConfig, state *types.FolderState, spec, runID string, report *types.SyncReport) error {
	overviews, err := o.conn.FetchOverview(folder.Path, spec)
	if err != nil {
		return err
	}
	sortOverviews(overviews)

	headerRules := o.mailbox.RulesForStage(types.StageHeader)
	overviewRules := o.mailbox.RulesForStage(types.StageOverview)

	processed := 0
	stalled := false
	for i := range overviews {
		ov := &overviews[i]

		if (i+1)%heartbeatEvery == 0 {
			o.touch(runID)
		}

		if !o.filterOverview(ov, headerRules, overviewRules) {
			report.SkippedOnFilter++
			if !stalled {
				state.LastHeaderUID = ov.UID
			}
			continue
		}

		rec := types.MessageHeaderRecord{
			Account: o.account.Name,
			Folder:  folder.Path,
			UID:     ov.UID,
			Subject: ov.Subject,
			From:    ov.From,
			To:      ov.To,
			Date:    ov.Date,
			Size:    ov.Size,
			Flags:   ov.Flags,
		}

		key := fmt.Sprintf("%s/%s/%d", o.account.Name, folder.Path, ov.UID)
		if err := o.putJSON(record.KindHeader, key, rec); err != nil {
			o.logger.WithError(err).WithField("uid", ov.UID).Error("Failed to store header")
			report.Errors = append(report.Errors, err.Error())
			stalled = true
			continue
		}

		report.NewHeaders++
		processed++
		if stalled {
			continue
		}
		state.LastHeaderUID = ov.UID

		if err := o.saveFolderState(state); err != nil {
			return err
		}
	}

	if o.progress != nil {
		o.progress(folder.Path, "headers", processed)
	}

	return nil
}

// messagePass fetches, parses and derives records for each full
// message in ascending UID order. A store failure stalls the message
// watermark at the preceding UID while later UIDs keep being
// processed, so the failed UID is retried on the next run.
func (o *Orchestrator) messagePass(folder *config.FolderConfig, state *types.FolderState, spec, runID string, report *types.SyncReport) error {
	overviews, err := o.conn.FetchOverview(folder.Path, spec)
	if err != nil {
		return err
	}
	sortOverviews(overviews)

	rules := o.mailbox.RulesForStage(types.StageMessage)

	processed := 0
	stalled := false
	for i := range overviews {
		ov := &overviews[i]

		if (i+1)%heartbeatEvery == 0 {
			o.touch(runID)
		}

		advance, err := o.ingestMessage(folder, ov, rules, report)
		if err != nil {
			var connErr *types.ConnectionError
			if errors.As(err, &connErr) {
				return err
			}
			report.Errors = append(report.Errors, err.Error())
			o.logger.WithError(err).WithField("uid", ov.UID).Warn("Message ingestion failed")
		}
		if !advance {
			stalled = true
			continue
		}
		processed++
		if stalled {
			continue
		}
		state.LastMessageUID = ov.UID
		if err := o.saveFolderState(state); err != nil {
			return err
		}
	}

	if o.progress != nil {
		o.progress(folder.Path, "messages", processed)
	}

	return nil
}

// ingestMessage processes one full message. The returned advance flag
// reports whether the UID counts as processed for the watermark.
func (o *Orchestrator) ingestMessage(folder *config.FolderConfig, ov *types.HeaderOverview, rules []types.FilterRule, report *types.SyncReport) (bool, error) {
	raw, err := o.conn.FetchRawMessage(folder.Path, ov.UID)
	if err != nil {
		return false, err
	}

	rec, err := o.parser.Parse(raw, message.Context{
		Account: o.account.Name,
		Folder:  folder.Path,
		UID:     ov.UID,
		Flags:   ov.Flags,
	})
	if err != nil {
		var parseErr *types.ParseError
		if errors.As(err, &parseErr) {
			report.SkippedOnError++
			return true, err
		}
		return false, err
	}

	result := o.filters.Evaluate(filter.MessageView{Message: rec}, rules)
	if !result.Proceed {
		report.SkippedOnFilter++
		return true, nil
	}
	rec.Categories = dedupeStrings(result.Categories)

	o.observeDeliveredTo(rec.DeliveredTo)

	pattern := o.account.MessagePattern
	if result.PagenameOverride != "" {
		pattern = result.PagenameOverride
	}
	key := record.ExpandPattern(pattern, map[string]string{
		"account": o.account.Name,
		"folder":  folder.Path,
		"uid":     fmt.Sprintf("%d", ov.UID),
	})

	existing, found, err := o.store.Get(record.KindMessage, key)
	if err != nil {
		return false, err
	}
	if found && o.account.IgnoreExisting {
		report.SkippedOnExisting++
		return true, nil
	}

	// Conversation and contacts first, so a crash before the message
	// store retries idempotently through the merge semantics.
	hash, convCreated, err := o.convs.Upsert(o.account.Name, o.account.IMAPUsername, rec, folder.Type, o.ownedList())
	if err != nil {
		o.logger.WithError(err).Warn("Conversation upsert failed")
		report.Errors = append(report.Errors, err.Error())
	} else if convCreated {
		report.NewConversations++
	}
	rec.ConversationHash = hash

	o.resolveContacts(rec, hash, report)

	if found {
		var prev types.MessageRecord
		if err := json.Unmarshal(existing, &prev); err == nil {
			merged := mergeMessages(&prev, rec)
			rec = merged
		}
	}

	if err := o.putJSON(record.KindMessage, key, rec); err != nil {
		return false, err
	}

	report.NewMessages++
	return true, nil
}

// resolveContacts derives a contact for every non-owned participant.
// A missing address is an error for that contact only; the message
// continues.
func (o *Orchestrator) resolveContacts(rec *types.MessageRecord, hash string, report *types.SyncReport) {
	senders := make(map[string]bool)
	for _, a := range rec.From {
		senders[a.Address] = true
	}

	seen := make(map[string]bool)
	for _, addr := range allAddresses(rec) {
		if addr.Address == "" || seen[addr.Address] || o.owned[addr.Address] {
			continue
		}
		seen[addr.Address] = true

		language := ""
		if senders[addr.Address] {
			language = rec.Language
		}

		created, _, err := o.contacts.Resolve(o.account.Name, addr.Name, addr.Address, rec.Date, language, hash)
		if err != nil {
			o.logger.WithError(err).WithField("address", addr.Address).Warn("Contact resolution failed")
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		if created {
			report.NewContacts++
		}
	}
}

// filterOverview applies the header checkpoint and then the overview
// checkpoint; either may veto storage.
func (o *Orchestrator) filterOverview(ov *types.HeaderOverview, headerRules, overviewRules []types.FilterRule) bool {
	if len(headerRules) > 0 {
		result := o.filters.Evaluate(filter.OverviewView{Overview: ov, Stage: types.StageHeader}, headerRules)
		if !result.Proceed {
			return false
		}
	}
	if len(overviewRules) > 0 {
		result := o.filters.Evaluate(filter.OverviewView{Overview: ov, Stage: types.StageOverview}, overviewRules)
		if !result.Proceed {
			return false
		}
	}
	return true
}

// loadOwnedAddresses merges the configured ownership list with the
// persisted one.
func (o *Orchestrator) loadOwnedAddresses() error {
	o.owned = make(map[string]bool)
	for _, addr := range o.account.OwnedAddresses {
		o.owned[strings.ToLower(addr)] = true
	}
	o.owned[strings.ToLower(o.account.IMAPUsername)] = true

	doc, found, err := o.store.Get(record.KindMailbox, o.account.Name)
	if err != nil {
		return err
	}
	if found {
		var state MailboxState
		if err := json.Unmarshal(doc, &state); err == nil {
			for _, addr := range state.AllAddresses {
				o.owned[strings.ToLower(addr)] = true
			}
		}
	}
	return nil
}

// observeDeliveredTo grows the ownership list; addresses are only ever
// added, never removed.
func (o *Orchestrator) observeDeliveredTo(addrs []string) {
	for _, addr := range addrs {
		addr = strings.ToLower(addr)
		if addr != "" && !o.owned[addr] {
			o.owned[addr] = true
			o.ownedDirty = true
		}
	}
}

func (o *Orchestrator) ownedList() []string {
	out := make([]string, 0, len(o.owned))
	for addr := range o.owned {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// loadFolderState reads the persisted watermark document for a folder,
// seeding it from configuration on first sight.
func (o *Orchestrator) loadFolderState(folder *config.FolderConfig) (*types.FolderState, error) {
	key := o.account.Name + "/" + folder.Path

	state := &types.FolderState{
		Account: o.account.Name,
		Path:    folder.Path,
		Type:    folder.Type,
		Policy:  folder.Fetch,
	}

	doc, found, err := o.store.Get(record.KindFolder, key)
	if err != nil {
		return nil, err
	}
	if found {
		var stored types.FolderState
		if err := json.Unmarshal(doc, &stored); err != nil {
			return nil, &types.StorageError{Kind: record.KindFolder, Key: key, Err: err}
		}
		state.UIDValidity = stored.UIDValidity
		state.LastHeaderUID = stored.LastHeaderUID
		state.LastMessageUID = stored.LastMessageUID
	}

	return state, nil
}

// saveFolderState persists the watermark document, together with the
// ownership list when it grew, so overlapping runs cannot lose either
// (the run-lock is the primary guard).
func (o *Orchestrator) saveFolderState(state *types.FolderState) error {
	key := state.Account + "/" + state.Path
	if err := o.putJSON(record.KindFolder, key, state); err != nil {
		return err
	}

	if o.ownedDirty {
		mb := MailboxState{
			Name:         o.account.Name,
			AllAddresses: o.ownedList(),
			UpdatedAt:    time.Now(),
		}
		if err := o.putJSON(record.KindMailbox, o.account.Name, mb); err != nil {
			return err
		}
		o.ownedDirty = false
	}

	return nil
}

func (o *Orchestrator) putJSON(kind, key string, value interface{}) error {
	doc, err := json.Marshal(value)
	if err != nil {
		return &types.StorageError{Kind: kind, Key: key, Err: err}
	}
	return o.store.Put(kind, key, doc)
}

// mergeMessages folds a re-ingested message into its stored record.
// Scalars and parsed lists take the new values; categories union so the
// merge is idempotent.
func mergeMessages(prev, next *types.MessageRecord) *types.MessageRecord {
	out := *next
	out.Categories = dedupeStrings(append(append([]string(nil), prev.Categories...), next.Categories...))
	return &out
}

func allAddresses(rec *types.MessageRecord) []types.Address {
	var out []types.Address
	out = append(out, rec.From...)
	out = append(out, rec.To...)
	out = append(out, rec.Cc...)
	out = append(out, rec.Bcc...)
	return out
}

func sortOverviews(overviews []types.HeaderOverview) {
	sort.Slice(overviews, func(i, j int) bool { return overviews[i].UID < overviews[j].UID })
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
