package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"member-onboarding/internal/events"
	"member-onboarding/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type OnboardingOptions struct {
	Concurrency int
	Queue       ImportQueue
	Retries     *RetryOrchestrator
	Progress    ProgressTracker
	Events      events.Publisher
}

// OnboardingService runs uploads through validation, duplicate detection,
// provisioning and delivery, folding every row into its import ledger.
type OnboardingService struct {
	members     MemberStore
	ledgers     LedgerStore
	duplicates  *DuplicateDetector
	credentials *CredentialManager
	provisioner *Provisioner
	dispatcher  *Dispatcher

	concurrency int
	queue       ImportQueue
	retries     *RetryOrchestrator
	progress    ProgressTracker
	events      events.Publisher
	logger      *logrus.Logger
	now         func() time.Time
}

func NewOnboardingService(
	members MemberStore,
	ledgers LedgerStore,
	credentials *CredentialManager,
	provisioner *Provisioner,
	dispatcher *Dispatcher,
	opts OnboardingOptions,
	logger *logrus.Logger,
) *OnboardingService {
	s := &OnboardingService{
		members:     members,
		ledgers:     ledgers,
		duplicates:  NewDuplicateDetector(members),
		credentials: credentials,
		provisioner: provisioner,
		dispatcher:  dispatcher,
		concurrency: opts.Concurrency,
		queue:       opts.Queue,
		retries:     opts.Retries,
		progress:    opts.Progress,
		events:      opts.Events,
		logger:      logger,
		now:         time.Now,
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	if s.progress == nil {
		s.progress = NopProgress{}
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	return s
}

// Preview validates an upload without writing anything.
func (s *OnboardingService) Preview(ctx context.Context, filename string, content []byte) (*models.PreviewResult, error) {
	table, err := ParseUpload(filename, content)
	if err != nil {
		return nil, err
	}
	rows, err := ExtractRows(table)
	if err != nil {
		return nil, err
	}

	result := &models.PreviewResult{
		RowCount:  len(rows),
		Headers:   table.Headers,
		Errors:    []models.RowError{},
		PreviewAt: s.now(),
	}

	normalized := make([]models.MemberRow, len(rows))
	invalid := map[int]bool{}
	for i, row := range rows {
		n, errs := ValidateRow(row)
		normalized[i] = n
		if len(errs) > 0 {
			invalid[n.RowNumber] = true
			result.Errors = append(result.Errors, errs...)
		}
	}

	inFile := FindInFileDuplicates(normalized)
	var candidates []models.MemberRow
	for _, row := range normalized {
		if errs := inFile[row.RowNumber]; len(errs) > 0 {
			invalid[row.RowNumber] = true
			result.Errors = append(result.Errors, errs...)
			continue
		}
		if !invalid[row.RowNumber] {
			candidates = append(candidates, row)
		}
	}

	existing, err := s.duplicates.Existing(ctx, candidates)
	if err != nil {
		return nil, err
	}
	for _, row := range candidates {
		if m, column := MatchExisting(existing, row); m != nil {
			invalid[row.RowNumber] = true
			result.Errors = append(result.Errors, ExistingDuplicateError(row, column))
		}
	}

	sortRowErrors(result.Errors)
	result.ValidCount = len(rows) - len(invalid)
	return result, nil
}

// Confirm stages the upload as a ledger and processes it, or queues it
// when async is set and a queue is configured.
func (s *OnboardingService) Confirm(ctx context.Context, req models.ConfirmRequest, async bool) (*models.ConfirmResult, error) {
	ledger, err := s.Stage(ctx, req)
	if err != nil {
		return nil, err
	}

	if async && s.queue != nil {
		if err := s.queue.EnqueueImport(ctx, ledger.ID); err != nil {
			return nil, fmt.Errorf("failed to queue import %s: %w", ledger.ID, err)
		}
		s.logger.WithField("ledger_id", ledger.ID).Info("Import queued for background processing")
		return &models.ConfirmResult{
			LedgerID:   ledger.ID,
			Status:     ledger.Status,
			Statistics: ledger.Statistics(),
			Errors:     []models.LedgerError{},
		}, nil
	}
	if async {
		s.logger.WithField("ledger_id", ledger.ID).Warn("No import queue configured, processing inline")
	}
	return s.Process(ctx, ledger.ID)
}

// Stage parses the upload and records a pending ledger that retains every
// row. File level errors return before anything is written.
func (s *OnboardingService) Stage(ctx context.Context, req models.ConfirmRequest) (*models.ImportLedger, error) {
	table, err := ParseUpload(req.Filename, req.Content)
	if err != nil {
		return nil, err
	}
	rows, err := ExtractRows(table)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &models.FileError{Reason: "file must contain a header row and at least one member row"}
	}

	ledger := &models.ImportLedger{
		ID:           uuid.NewString(),
		OperatorID:   req.OperatorID,
		OperatorName: req.OperatorName,
		Filename:     req.Filename,
		TotalRows:    len(rows),
		Status:       models.LedgerPending,
	}
	retained := make([]models.LedgerRow, len(rows))
	for i, row := range rows {
		retained[i] = row.LedgerRow(ledger.ID)
	}

	if err := s.ledgers.Create(ctx, ledger, retained); err != nil {
		return nil, fmt.Errorf("failed to create import ledger: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"ledger_id":   ledger.ID,
		"filename":    ledger.Filename,
		"total_rows":  ledger.TotalRows,
		"operator_id": ledger.OperatorID,
	}).Info("Import ledger created")
	return ledger, nil
}

// Process resolves every unresolved row of a ledger. It is safe to call
// again on a ledger that was interrupted; rows already resolved are left
// alone and members created by the earlier run are recognised.
func (s *OnboardingService) Process(ctx context.Context, ledgerID string) (*models.ConfirmResult, error) {
	ledger, err := s.ledgers.FindByID(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	if ledger.Status == models.LedgerCompleted {
		return nil, fmt.Errorf("%w: %s", models.ErrLedgerClosed, ledgerID)
	}
	if err := s.ledgers.SetStatus(ctx, ledgerID, models.LedgerProcessing); err != nil {
		return nil, fmt.Errorf("failed to mark ledger processing: %w", err)
	}

	rows, err := s.ledgers.Rows(ctx, ledgerID)
	if err != nil {
		return s.finish(ctx, ledgerID, fmt.Errorf("failed to load ledger rows: %w", err), nil)
	}

	log := s.logger.WithField("ledger_id", ledgerID)
	log.WithField("rows", len(rows)).Info("Processing import ledger")

	// Duplicates are judged against the whole file, resolved rows included.
	normalized := make([]models.MemberRow, len(rows))
	invalid := map[int][]models.RowError{}
	for i, row := range rows {
		n, errs := ValidateRow(row.MemberRow())
		normalized[i] = n
		if len(errs) > 0 {
			invalid[n.RowNumber] = errs
		}
	}
	inFile := FindInFileDuplicates(normalized)

	acc := NewLedgerAccumulator(ctx, s.ledgers, s.progress, ledger, s.logger)

	var candidates []models.MemberRow
	for i, row := range rows {
		if row.Outcome != models.RowUnresolved {
			continue
		}
		n := normalized[i]
		if errs, bad := invalid[n.RowNumber]; bad {
			acc.Submit(models.RowResult{RowNumber: n.RowNumber, Identity: n.MemberID, Outcome: models.RowFailed, Errors: errs})
			continue
		}
		if errs := inFile[n.RowNumber]; len(errs) > 0 {
			acc.Submit(models.RowResult{RowNumber: n.RowNumber, Identity: n.MemberID, Outcome: models.RowSkipped, Errors: errs})
			continue
		}
		candidates = append(candidates, n)
	}

	existing, err := s.duplicates.Existing(ctx, candidates)
	if err != nil {
		_, _, _ = acc.Close()
		return s.finish(ctx, ledgerID, err, nil)
	}

	var (
		fresh   []models.MemberRow
		resumed []resumedRow
	)
	for _, row := range candidates {
		m, column := MatchExisting(existing, row)
		if m == nil {
			fresh = append(fresh, row)
			continue
		}
		if m.ImportLedgerID != nil && *m.ImportLedgerID == ledgerID && m.MemberID == row.MemberID {
			resumed = append(resumed, resumedRow{row: row, member: m})
			continue
		}
		acc.Submit(models.RowResult{
			RowNumber: row.RowNumber,
			Identity:  row.MemberID,
			Outcome:   models.RowSkipped,
			Errors:    []models.RowError{ExistingDuplicateError(row, column)},
		})
	}

	secrets, err := s.credentials.GenerateBatch(len(fresh))
	if err != nil {
		_, _, _ = acc.Close()
		return s.finish(ctx, ledgerID, err, nil)
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range resumed {
		r := resumed[i]
		g.Go(func() error {
			acc.Submit(s.resumeRow(ctx, ledgerID, r.row, r.member))
			return nil
		})
	}
	for i := range fresh {
		if ctx.Err() != nil {
			break
		}
		row, secret := fresh[i], secrets[i]
		g.Go(func() error {
			acc.Submit(s.processRow(ctx, ledgerID, row, secret))
			return nil
		})
	}
	_ = g.Wait()

	_, _, persistErr := acc.Close()
	return s.finish(ctx, ledgerID, ctx.Err(), persistErr)
}

// Reprocess runs the outstanding rows of an interrupted ledger again.
func (s *OnboardingService) Reprocess(ctx context.Context, ledgerID string) (*models.ConfirmResult, error) {
	return s.Process(ctx, ledgerID)
}

func (s *OnboardingService) processRow(ctx context.Context, ledgerID string, row models.MemberRow, secret string) models.RowResult {
	result := models.RowResult{RowNumber: row.RowNumber, Identity: row.MemberID}
	log := s.logger.WithFields(logrus.Fields{
		"ledger_id": ledgerID,
		"row":       row.RowNumber,
		"member_id": row.MemberID,
	})

	cred, err := s.credentials.Seal(secret)
	if err != nil {
		log.WithError(err).Error("Failed to issue temporary secret")
		result.Outcome = models.RowFailed
		result.Errors = []models.RowError{provisioningError(row, err)}
		return result
	}

	member, err := s.provisioner.Provision(ctx, row, ledgerID, cred)
	if errors.Is(err, models.ErrDuplicateIdentity) {
		result.Outcome = models.RowSkipped
		result.Errors = []models.RowError{{
			Row:      row.RowNumber,
			MemberID: row.MemberID,
			Reason:   "identity was registered concurrently by another member",
			Kind:     models.KindDuplicate,
		}}
		return result
	}
	if err != nil {
		log.WithError(err).Error("Failed to provision member")
		result.Outcome = models.RowFailed
		result.Errors = []models.RowError{provisioningError(row, err)}
		return result
	}

	pk := member.ID
	result.Outcome = models.RowSuccessful
	result.MemberPK = &pk
	s.publish(ctx, events.MemberProvisioned, events.MemberProvisionedEvent{
		MemberPK: member.ID,
		MemberID: member.MemberID,
		LedgerID: ledgerID,
		At:       s.now().UTC(),
	})

	// The account exists now; its notifications are sent even if the batch
	// is being cancelled.
	report := s.dispatcher.Deliver(context.WithoutCancel(ctx), member, cred.Plaintext)
	s.reportDelivery(ctx, row, member.ID, report, &result)
	return result
}

type resumedRow struct {
	row    models.MemberRow
	member *models.Member
}

// resumeRow resolves a row whose member an interrupted run already created.
// When no notification reached the member, a new secret is sent.
func (s *OnboardingService) resumeRow(ctx context.Context, ledgerID string, row models.MemberRow, m *models.Member) models.RowResult {
	pk := m.ID
	result := models.RowResult{RowNumber: row.RowNumber, Identity: row.MemberID, Outcome: models.RowSuccessful, MemberPK: &pk}
	if s.retries == nil || !awaitingDelivery(m) {
		return result
	}

	report, err := s.retries.Redeliver(context.WithoutCancel(ctx), m.ID)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"ledger_id": ledgerID,
			"row":       row.RowNumber,
			"member_pk": m.ID,
		}).WithError(err).Warn("Failed to redeliver temporary secret")
		return result
	}
	s.reportDelivery(ctx, row, m.ID, report, &result)
	return result
}

func awaitingDelivery(m *models.Member) bool {
	return m.ActivationStatus != models.StatusActivated &&
		m.SentAt(models.ChannelSMS) == nil &&
		m.SentAt(models.ChannelEmail) == nil
}

// reportDelivery attaches a delivery report to the row result and queues
// automatic retries for every failed channel.
func (s *OnboardingService) reportDelivery(ctx context.Context, row models.MemberRow, memberPK int64, report models.DeliveryReport, result *models.RowResult) {
	result.Delivery = &report

	for _, outcome := range report.Outcomes() {
		if outcome.OK {
			continue
		}
		result.Errors = append(result.Errors, models.RowError{
			Row:      row.RowNumber,
			MemberID: row.MemberID,
			Field:    string(outcome.Channel),
			Reason:   fmt.Sprintf("%s delivery failed: %s", outcome.Channel, outcome.Error),
			Kind:     models.KindDelivery,
		})
		s.publish(ctx, events.DeliveryFailed, events.DeliveryFailedEvent{
			MemberPK: memberPK,
			Channel:  string(outcome.Channel),
			Reason:   outcome.Error,
			At:       outcome.At,
		})
		if s.retries != nil {
			s.retries.ScheduleAutomatic(context.WithoutCancel(ctx), memberPK, outcome.Channel, 1)
		}
	}
}

func provisioningError(row models.MemberRow, err error) models.RowError {
	return models.RowError{
		Row:      row.RowNumber,
		MemberID: row.MemberID,
		Reason:   err.Error(),
		Kind:     models.KindProvisioning,
	}
}

// finish marks the ledger completed when every row is resolved, otherwise
// failed with its unresolved rows left for recovery.
func (s *OnboardingService) finish(ctx context.Context, ledgerID string, cause, persistErr error) (*models.ConfirmResult, error) {
	ctx = context.WithoutCancel(ctx)
	log := s.logger.WithField("ledger_id", ledgerID)

	ledger, err := s.ledgers.FindByID(ctx, ledgerID)
	if err != nil {
		return nil, err
	}

	status := models.LedgerCompleted
	message := ""
	switch {
	case persistErr != nil:
		status = models.LedgerFailed
		message = fmt.Sprintf("failed to record row results: %v", persistErr)
	case !ledger.Balanced():
		status = models.LedgerFailed
		message = fmt.Sprintf("%d of %d rows unresolved", ledger.TotalRows-ledger.Resolved(), ledger.TotalRows)
		if cause != nil {
			message = fmt.Sprintf("%v: %s", cause, message)
		}
	}

	finishedAt := s.now().UTC()
	if err := s.ledgers.Finalize(ctx, ledgerID, status, message, finishedAt); err != nil {
		return nil, fmt.Errorf("failed to finalize ledger: %w", err)
	}
	ledger.Status = status
	ledger.ErrorMessage = message

	ledgerErrors, err := s.ledgers.Errors(ctx, ledgerID)
	if err != nil {
		log.WithError(err).Warn("Failed to load ledger errors")
		ledgerErrors = []models.LedgerError{}
	}

	subject := events.LedgerCompleted
	if status == models.LedgerFailed {
		subject = events.LedgerFailed
	}
	s.publish(ctx, subject, events.LedgerFinishedEvent{
		LedgerID:    ledgerID,
		Status:      string(status),
		TotalRows:   ledger.TotalRows,
		Successful:  ledger.Successful,
		Failed:      ledger.Failed,
		Skipped:     ledger.Skipped,
		FinishedAt:  finishedAt,
		Description: message,
	})

	log.WithFields(logrus.Fields{
		"status":     status,
		"successful": ledger.Successful,
		"failed":     ledger.Failed,
		"skipped":    ledger.Skipped,
	}).Info("Import ledger finished")

	result := &models.ConfirmResult{
		LedgerID:   ledgerID,
		Status:     status,
		Statistics: ledger.Statistics(),
		Errors:     ledgerErrors,
	}
	if cause != nil && status == models.LedgerFailed {
		return result, fmt.Errorf("import %s interrupted: %w", ledgerID, cause)
	}
	return result, nil
}

func (s *OnboardingService) GetLedger(ctx context.Context, id string) (*models.ImportLedger, error) {
	return s.ledgers.FindByID(ctx, id)
}

// Progress returns live counters while a ledger is processing.
func (s *OnboardingService) Progress(ctx context.Context, id string) (*models.Statistics, error) {
	return s.progress.Get(ctx, id)
}

func (s *OnboardingService) ListLedgers(ctx context.Context, page, limit int) ([]models.ImportLedger, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 25
	}
	return s.ledgers.List(ctx, limit, (page-1)*limit)
}

func (s *OnboardingService) LedgerErrors(ctx context.Context, id string) ([]models.LedgerError, error) {
	if _, err := s.ledgers.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.ledgers.Errors(ctx, id)
}

func (s *OnboardingService) publish(ctx context.Context, subject string, payload interface{}) {
	if err := s.events.Publish(ctx, subject, payload); err != nil {
		s.logger.WithField("subject", subject).WithError(err).Warn("Failed to publish event")
	}
}

func sortRowErrors(errs []models.RowError) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Row < errs[j].Row })
}
