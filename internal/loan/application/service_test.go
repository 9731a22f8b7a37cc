package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	ledgerapp "github.com/savacoop/saccocore/internal/ledger/application"
	ledgerdomain "github.com/savacoop/saccocore/internal/ledger/domain"
	"github.com/savacoop/saccocore/internal/loan/domain"
	"github.com/savacoop/saccocore/pkg/metrics"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakeLoanRepo struct {
	byID map[string]*domain.Loan
}

func newFakeLoanRepo() *fakeLoanRepo {
	return &fakeLoanRepo{byID: make(map[string]*domain.Loan)}
}

func (f *fakeLoanRepo) Save(_ context.Context, _ *gorm.DB, loan *domain.Loan) error {
	f.byID[loan.LoanID] = loan
	return nil
}

func (f *fakeLoanRepo) Get(_ context.Context, loanID string) (*domain.Loan, error) {
	return f.byID[loanID], nil
}

func (f *fakeLoanRepo) GetForUpdate(_ context.Context, _ *gorm.DB, loanID string) (*domain.Loan, error) {
	return f.byID[loanID], nil
}

func (f *fakeLoanRepo) ListByMember(_ context.Context, memberID string) ([]*domain.Loan, error) {
	var out []*domain.Loan
	for _, loan := range f.byID {
		if loan.MemberID == memberID {
			out = append(out, loan)
		}
	}
	return out, nil
}

func (f *fakeLoanRepo) ListByStatus(_ context.Context, status domain.LoanStatus, _, _ int) ([]*domain.Loan, int64, error) {
	var out []*domain.Loan
	for _, loan := range f.byID {
		if loan.Status == status {
			out = append(out, loan)
		}
	}
	return out, int64(len(out)), nil
}

type fakeProductRepo struct {
	byID map[string]*domain.LoanProduct
}

func (f *fakeProductRepo) Get(_ context.Context, productID string) (*domain.LoanProduct, error) {
	return f.byID[productID], nil
}

func (f *fakeProductRepo) ListActive(_ context.Context) ([]*domain.LoanProduct, error) {
	var out []*domain.LoanProduct
	for _, product := range f.byID {
		out = append(out, product)
	}
	return out, nil
}

func (f *fakeProductRepo) Save(_ context.Context, product *domain.LoanProduct) error {
	f.byID[product.ProductID] = product
	return nil
}

type fakeRepaymentRepo struct {
	byID   map[uint]*domain.LoanRepayment
	nextID uint
	// When set, ListOverdueCandidates serves this snapshot instead of the
	// stored rows, the way a page scan sees rows as of an earlier moment.
	staleCandidates []*domain.LoanRepayment
}

func newFakeRepaymentRepo() *fakeRepaymentRepo {
	return &fakeRepaymentRepo{byID: make(map[uint]*domain.LoanRepayment)}
}

func (f *fakeRepaymentRepo) Save(_ context.Context, _ *gorm.DB, repayment *domain.LoanRepayment) error {
	if repayment.ID == 0 {
		f.nextID++
		repayment.ID = f.nextID
	}
	f.byID[repayment.ID] = repayment
	return nil
}

func (f *fakeRepaymentRepo) SaveBatch(ctx context.Context, tx *gorm.DB, repayments []*domain.LoanRepayment) error {
	for _, repayment := range repayments {
		if err := f.Save(ctx, tx, repayment); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRepaymentRepo) GetForUpdate(_ context.Context, _ *gorm.DB, id uint) (*domain.LoanRepayment, error) {
	return f.byID[id], nil
}

func (f *fakeRepaymentRepo) ListByLoan(_ context.Context, loanID string) ([]*domain.LoanRepayment, error) {
	var out []*domain.LoanRepayment
	for _, repayment := range f.byID {
		if repayment.LoanID == loanID {
			out = append(out, repayment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodNumber < out[j].PeriodNumber })
	return out, nil
}

func (f *fakeRepaymentRepo) ListDueByLoan(_ context.Context, _ *gorm.DB, loanID string) ([]*domain.LoanRepayment, error) {
	var out []*domain.LoanRepayment
	for _, repayment := range f.byID {
		if repayment.LoanID == loanID && repayment.Status != domain.RepaymentStatusPaid {
			out = append(out, repayment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (f *fakeRepaymentRepo) ListOverdueCandidates(_ context.Context, before time.Time, _, offset int) ([]*domain.LoanRepayment, error) {
	if offset > 0 {
		return nil, nil
	}
	if f.staleCandidates != nil {
		return f.staleCandidates, nil
	}
	var out []*domain.LoanRepayment
	for _, repayment := range f.byID {
		if repayment.DueDate.Before(before) && repayment.Status != domain.RepaymentStatusPaid {
			out = append(out, repayment)
		}
	}
	return out, nil
}

type fakeGuarantorRepo struct {
	byLoan map[string][]*domain.Guarantor
}

func newFakeGuarantorRepo() *fakeGuarantorRepo {
	return &fakeGuarantorRepo{byLoan: make(map[string][]*domain.Guarantor)}
}

func (f *fakeGuarantorRepo) Save(_ context.Context, _ *gorm.DB, guarantor *domain.Guarantor) error {
	for i, g := range f.byLoan[guarantor.LoanID] {
		if g.MemberID == guarantor.MemberID {
			f.byLoan[guarantor.LoanID][i] = guarantor
			return nil
		}
	}
	f.byLoan[guarantor.LoanID] = append(f.byLoan[guarantor.LoanID], guarantor)
	return nil
}

func (f *fakeGuarantorRepo) ListByLoan(_ context.Context, loanID string) ([]*domain.Guarantor, error) {
	return f.byLoan[loanID], nil
}

type fakeLoanLedger struct {
	posted    []ledgerapp.PostCommand
	failPosts bool
	holds     map[string]decimal.Decimal
	releases  map[string]decimal.Decimal
}

func newFakeLoanLedger() *fakeLoanLedger {
	return &fakeLoanLedger{
		holds:    make(map[string]decimal.Decimal),
		releases: make(map[string]decimal.Decimal),
	}
}

func (f *fakeLoanLedger) PostInTx(_ context.Context, _ *gorm.DB, cmd ledgerapp.PostCommand) (*ledgerdomain.Transaction, error) {
	if f.failPosts {
		return nil, errors.New("ledger unavailable")
	}
	f.posted = append(f.posted, cmd)
	return &ledgerdomain.Transaction{TransactionID: "TXN-" + cmd.Reference, AccountID: cmd.AccountID}, nil
}

func (f *fakeLoanLedger) GetMemberAccount(_ context.Context, memberID string, accountType ledgerdomain.AccountType) (*ledgerdomain.Account, error) {
	return ledgerdomain.NewAccount("DEP-"+memberID, memberID, accountType), nil
}

func (f *fakeLoanLedger) CountDepositsSince(_ context.Context, _ string, _ time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeLoanLedger) PlaceHold(_ context.Context, accountID string, amount decimal.Decimal) error {
	f.holds[accountID] = f.holds[accountID].Add(amount)
	return nil
}

func (f *fakeLoanLedger) ReleaseHoldInTx(_ context.Context, _ *gorm.DB, accountID string, amount decimal.Decimal) error {
	f.releases[accountID] = f.releases[accountID].Add(amount)
	return nil
}

type fakeVouchers struct {
	created []string
}

func (f *fakeVouchers) CreatePaidForLoanInTx(_ context.Context, _ *gorm.DB, loanID, _ string, _ decimal.Decimal, _ string) error {
	f.created = append(f.created, loanID)
	return nil
}

type fakeNotifier struct{ sent int }

func (f *fakeNotifier) Notify(_ context.Context, _, _, _, _ string) error {
	f.sent++
	return nil
}

type loanTestFixture struct {
	svc        *Service
	loans      *fakeLoanRepo
	products   *fakeProductRepo
	repayments *fakeRepaymentRepo
	guarantors *fakeGuarantorRepo
	ledger     *fakeLoanLedger
	vouchers   *fakeVouchers
	notifier   *fakeNotifier
}

func newLoanTestFixture() *loanTestFixture {
	f := &loanTestFixture{
		loans:      newFakeLoanRepo(),
		products:   &fakeProductRepo{byID: make(map[string]*domain.LoanProduct)},
		repayments: newFakeRepaymentRepo(),
		guarantors: newFakeGuarantorRepo(),
		ledger:     newFakeLoanLedger(),
		vouchers:   &fakeVouchers{},
		notifier:   &fakeNotifier{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(
		stubTxRunner{},
		f.loans,
		f.products,
		f.repayments,
		f.guarantors,
		nil,
		f.ledger,
		f.vouchers,
		f.notifier,
		domain.Policy{},
		metrics.New("loan_test"),
		logger,
	)
	return f
}

func approvedLoan(t *testing.T, f *loanTestFixture) *domain.Loan {
	t.Helper()
	loan := &domain.Loan{
		LoanID:        "LN-1",
		MemberID:      "MBR-1",
		ProductID:     "PRD-1",
		AppliedAmount: decimal.NewFromInt(50000),
		Status:        domain.LoanStatusPending,
	}
	require.NoError(t, loan.Approve(decimal.NewFromInt(50000), decimal.NewFromInt(12), 12, "manager", time.Now()))
	require.NoError(t, f.loans.Save(context.Background(), nil, loan))
	return loan
}

func TestDisburseActivatesLoanWithSchedule(t *testing.T) {
	f := newLoanTestFixture()
	loan := approvedLoan(t, f)
	require.NoError(t, f.guarantors.Save(context.Background(), nil, &domain.Guarantor{
		LoanID:           loan.LoanID,
		MemberID:         "MBR-G",
		GuaranteedAmount: decimal.NewFromInt(10000),
		AccountID:        "DEP-MBR-G",
	}))

	posted, err := f.svc.Disburse(context.Background(), loan.LoanID, "teller")
	require.NoError(t, err)
	require.NotNil(t, posted)

	stored := f.loans.byID[loan.LoanID]
	assert.Equal(t, domain.LoanStatusActive, stored.Status)
	assert.Equal(t, "50000.00", stored.PrincipalBalance.StringFixed(2))
	assert.True(t, stored.InterestBalance.IsPositive())
	assert.Equal(t,
		stored.PrincipalBalance.Add(stored.InterestBalance).StringFixed(2),
		stored.OutstandingBalance.StringFixed(2))

	schedule, err := f.repayments.ListByLoan(context.Background(), loan.LoanID)
	require.NoError(t, err)
	assert.Len(t, schedule, 12)

	require.Len(t, f.ledger.posted, 1)
	assert.Equal(t, ledgerdomain.TxTypeLoanDisbursement, f.ledger.posted[0].Type)
	assert.Equal(t, "DEP-MBR-1", f.ledger.posted[0].AccountID)

	assert.Equal(t, []string{loan.LoanID}, f.vouchers.created)
	assert.Equal(t, "10000", f.ledger.holds["DEP-MBR-G"].String())
}

func TestDisburseLedgerFailureLeavesLoanApproved(t *testing.T) {
	f := newLoanTestFixture()
	loan := approvedLoan(t, f)
	f.ledger.failPosts = true

	_, err := f.svc.Disburse(context.Background(), loan.LoanID, "teller")
	require.Error(t, err)

	stored := f.loans.byID[loan.LoanID]
	assert.Equal(t, domain.LoanStatusApproved, stored.Status)
	assert.Empty(t, f.vouchers.created)

	schedule, err := f.repayments.ListByLoan(context.Background(), loan.LoanID)
	require.NoError(t, err)
	assert.Empty(t, schedule)
}

func TestDisburseRejectsUnapprovedLoan(t *testing.T) {
	f := newLoanTestFixture()
	loan := &domain.Loan{LoanID: "LN-1", MemberID: "MBR-1", Status: domain.LoanStatusPending}
	require.NoError(t, f.loans.Save(context.Background(), nil, loan))

	_, err := f.svc.Disburse(context.Background(), loan.LoanID, "teller")
	assert.ErrorIs(t, err, domain.ErrLoanNotDisbursable)
}

func activeLoanWithInstallment(t *testing.T, f *loanTestFixture, due time.Time) (*domain.Loan, *domain.LoanRepayment) {
	t.Helper()
	loan := &domain.Loan{
		LoanID:             "LN-1",
		MemberID:           "MBR-1",
		ProductID:          "PRD-1",
		ApprovedAmount:     decimal.NewFromInt(900),
		Status:             domain.LoanStatusActive,
		PrincipalBalance:   decimal.NewFromInt(900),
		InterestBalance:    decimal.NewFromInt(100),
		OutstandingBalance: decimal.NewFromInt(1000),
	}
	require.NoError(t, f.loans.Save(context.Background(), nil, loan))

	installment := &domain.LoanRepayment{
		LoanID:            loan.LoanID,
		PeriodNumber:      1,
		DueDate:           due,
		PrincipalAmount:   decimal.NewFromInt(900),
		InterestAmount:    decimal.NewFromInt(100),
		ExpectedAmount:    decimal.NewFromInt(1000),
		OutstandingAmount: decimal.NewFromInt(1000),
		Status:            domain.RepaymentStatusPending,
	}
	require.NoError(t, f.repayments.Save(context.Background(), nil, installment))
	return loan, installment
}

func TestRecordRepaymentSettlesPenaltyAccruedAfterPartialPayment(t *testing.T) {
	f := newLoanTestFixture()
	now := time.Now()
	loan, installment := activeLoanWithInstallment(t, f, now.Add(-10*24*time.Hour-time.Hour))
	require.NoError(t, f.guarantors.Save(context.Background(), nil, &domain.Guarantor{
		LoanID:           loan.LoanID,
		MemberID:         "MBR-G",
		GuaranteedAmount: decimal.NewFromInt(500),
		AccountID:        "DEP-MBR-G",
	}))

	require.NoError(t, f.svc.RecordRepayment(context.Background(), loan.LoanID, decimal.NewFromInt(500), "REP-1"))

	stored := f.repayments.byID[installment.ID]
	assert.Equal(t, "500.00", stored.PaidAmount.StringFixed(2))
	assert.Equal(t, "100.00", stored.PaidInterest.StringFixed(2))
	assert.Equal(t, "400.00", stored.PaidPrincipal.StringFixed(2))
	assert.Equal(t, "500.00", f.loans.byID[loan.LoanID].OutstandingBalance.StringFixed(2))

	// The nightly sweep charges a penalty on the unpaid remainder before the
	// member pays again.
	stored.RecomputePenalty(now, decimal.NewFromInt(1))
	require.Equal(t, "50.00", stored.PenaltyAmount.StringFixed(2))
	current := f.loans.byID[loan.LoanID]
	current.PenaltyBalance = current.PenaltyBalance.Add(stored.PenaltyAmount)
	require.NoError(t, current.SyncBalances())

	require.NoError(t, f.svc.RecordRepayment(context.Background(), loan.LoanID, decimal.NewFromInt(550), "REP-2"))

	stored = f.repayments.byID[installment.ID]
	assert.Equal(t, domain.RepaymentStatusPaid, stored.Status)
	assert.Equal(t, "50.00", stored.PaidPenalty.StringFixed(2))
	assert.Equal(t, "900.00", stored.PaidPrincipal.StringFixed(2))
	assert.True(t, stored.OutstandingAmount.IsZero())

	final := f.loans.byID[loan.LoanID]
	assert.Equal(t, domain.LoanStatusCompleted, final.Status)
	assert.True(t, final.OutstandingBalance.IsZero())
	assert.True(t, final.PenaltyBalance.IsZero())

	assert.Equal(t, "500", f.ledger.releases["DEP-MBR-G"].String())
	released, err := f.guarantors.ListByLoan(context.Background(), loan.LoanID)
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.True(t, released[0].Released)

	assert.Equal(t, 1, f.notifier.sent)
}

func TestRecordRepaymentRejectsClosedLoan(t *testing.T) {
	f := newLoanTestFixture()
	loan := &domain.Loan{LoanID: "LN-1", MemberID: "MBR-1", Status: domain.LoanStatusCompleted}
	require.NoError(t, f.loans.Save(context.Background(), nil, loan))

	err := f.svc.RecordRepayment(context.Background(), loan.LoanID, decimal.NewFromInt(100), "REP-1")
	assert.ErrorIs(t, err, domain.ErrInvalidLoanState)
}

func TestAccrueRecomputesFromCurrentInstallment(t *testing.T) {
	f := newLoanTestFixture()
	f.products.byID["PRD-1"] = &domain.LoanProduct{
		ProductID:   "PRD-1",
		PenaltyRate: decimal.NewFromInt(1),
	}

	now := time.Now()
	due := now.Add(-10*24*time.Hour - time.Hour)
	loan := &domain.Loan{
		LoanID:             "LN-1",
		MemberID:           "MBR-1",
		ProductID:          "PRD-1",
		Status:             domain.LoanStatusActive,
		PrincipalBalance:   decimal.NewFromInt(400),
		OutstandingBalance: decimal.NewFromInt(400),
	}
	require.NoError(t, f.loans.Save(context.Background(), nil, loan))

	installment := &domain.LoanRepayment{
		LoanID:            loan.LoanID,
		PeriodNumber:      1,
		DueDate:           due,
		PrincipalAmount:   decimal.NewFromInt(900),
		InterestAmount:    decimal.NewFromInt(100),
		ExpectedAmount:    decimal.NewFromInt(1000),
		PaidAmount:        decimal.NewFromInt(600),
		PaidInterest:      decimal.NewFromInt(100),
		PaidPrincipal:     decimal.NewFromInt(500),
		OutstandingAmount: decimal.NewFromInt(400),
		Status:            domain.RepaymentStatusPartial,
	}
	require.NoError(t, f.repayments.Save(context.Background(), nil, installment))

	// The page scan saw the row before a 600 payment landed. The sweep must
	// charge the penalty on what is actually unpaid, not on the stale copy.
	stale := *installment
	stale.PaidAmount = decimal.Zero
	stale.PaidInterest = decimal.Zero
	stale.PaidPrincipal = decimal.Zero
	stale.OutstandingAmount = decimal.NewFromInt(1000)
	stale.Status = domain.RepaymentStatusPending
	f.repayments.staleCandidates = []*domain.LoanRepayment{&stale}

	require.NoError(t, f.svc.Accrue(context.Background(), now))

	stored := f.repayments.byID[installment.ID]
	assert.Equal(t, "40.00", stored.PenaltyAmount.StringFixed(2))
	assert.Equal(t, "600.00", stored.PaidAmount.StringFixed(2))
	assert.Equal(t, domain.RepaymentStatusOverdue, stored.Status)
	assert.Equal(t, 10, stored.DaysLate)

	updated := f.loans.byID[loan.LoanID]
	assert.Equal(t, "40.00", updated.PenaltyBalance.StringFixed(2))
	assert.Equal(t, "440.00", updated.OutstandingBalance.StringFixed(2))
	assert.Equal(t, 10, updated.DaysInArrears)
}

func TestAccrueSkipsInstallmentSettledSinceScan(t *testing.T) {
	f := newLoanTestFixture()
	f.products.byID["PRD-1"] = &domain.LoanProduct{
		ProductID:   "PRD-1",
		PenaltyRate: decimal.NewFromInt(1),
	}

	now := time.Now()
	due := now.Add(-10*24*time.Hour - time.Hour)
	loan := &domain.Loan{
		LoanID:   "LN-1",
		MemberID: "MBR-1",
		Status:   domain.LoanStatusActive,
	}
	require.NoError(t, f.loans.Save(context.Background(), nil, loan))

	paidAt := now
	installment := &domain.LoanRepayment{
		LoanID:          loan.LoanID,
		PeriodNumber:    1,
		DueDate:         due,
		PrincipalAmount: decimal.NewFromInt(900),
		InterestAmount:  decimal.NewFromInt(100),
		ExpectedAmount:  decimal.NewFromInt(1000),
		PaidAmount:      decimal.NewFromInt(1000),
		Status:          domain.RepaymentStatusPaid,
		PaidAt:          &paidAt,
	}
	require.NoError(t, f.repayments.Save(context.Background(), nil, installment))

	stale := *installment
	stale.PaidAmount = decimal.Zero
	stale.Status = domain.RepaymentStatusPending
	f.repayments.staleCandidates = []*domain.LoanRepayment{&stale}

	require.NoError(t, f.svc.Accrue(context.Background(), now))

	stored := f.repayments.byID[installment.ID]
	assert.Equal(t, domain.RepaymentStatusPaid, stored.Status)
	assert.True(t, stored.PenaltyAmount.IsZero())
	assert.True(t, f.loans.byID[loan.LoanID].PenaltyBalance.IsZero())
}

func TestAccrueReportsFailedInstallments(t *testing.T) {
	f := newLoanTestFixture()
	// No product configured, so the sweep cannot price the penalty.
	now := time.Now()
	loan := &domain.Loan{
		LoanID:    "LN-1",
		MemberID:  "MBR-1",
		ProductID: "PRD-MISSING",
		Status:    domain.LoanStatusActive,
	}
	require.NoError(t, f.loans.Save(context.Background(), nil, loan))
	require.NoError(t, f.repayments.Save(context.Background(), nil, &domain.LoanRepayment{
		LoanID:         loan.LoanID,
		PeriodNumber:   1,
		DueDate:        now.Add(-48 * time.Hour),
		ExpectedAmount: decimal.NewFromInt(1000),
		Status:         domain.RepaymentStatusPending,
	}))

	err := f.svc.Accrue(context.Background(), now)
	assert.Error(t, err)
}
