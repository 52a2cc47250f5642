package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SEED DATA - Initial revenue types and accounts
// =============================================================================

// DefaultRevenueTypes are created by Seed when missing (matched by name).
var DefaultRevenueTypes = []RevenueTypeInput{
	{Name: "Registration Fee", DefaultAmount: decimal.NewFromInt(1000)},
	{Name: "Monthly Dues", DefaultAmount: decimal.NewFromInt(500)},
	{Name: "Event Registration", DefaultAmount: decimal.NewFromInt(200)},
	{Name: "Donation", DefaultAmount: decimal.Zero},
	{Name: "Project Contribution", DefaultAmount: decimal.NewFromInt(300)},
}

// DefaultAccounts are created by Seed when missing (matched by name).
var DefaultAccounts = []AccountInput{
	{Name: "Main Cash", Type: AccountCash},
	{Name: "Equity Bank", Type: AccountBank},
	{Name: "M-Pesa", Type: AccountMobile},
}

// SeedResult lists what Seed created. Existing rows are left untouched.
type SeedResult struct {
	RevenueTypes []string
	Accounts     []string
}

// Seed creates the default revenue types and accounts. Running it twice
// creates nothing the second time.
func (s *Service) Seed(ctx context.Context) (*SeedResult, error) {
	result := &SeedResult{}

	existingTypes, err := s.store.ListRevenueTypes(ctx)
	if err != nil {
		return nil, err
	}
	haveType := make(map[string]bool, len(existingTypes))
	for _, rt := range existingTypes {
		haveType[rt.Name] = true
	}
	for _, in := range DefaultRevenueTypes {
		if haveType[in.Name] {
			continue
		}
		if _, err := s.CreateRevenueType(ctx, in); err != nil {
			return nil, err
		}
		result.RevenueTypes = append(result.RevenueTypes, in.Name)
	}

	existingAccounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	haveAccount := make(map[string]bool, len(existingAccounts))
	for _, a := range existingAccounts {
		haveAccount[a.Name] = true
	}
	for _, in := range DefaultAccounts {
		if haveAccount[in.Name] {
			continue
		}
		if _, err := s.CreateAccount(ctx, in); err != nil {
			return nil, err
		}
		result.Accounts = append(result.Accounts, in.Name)
	}

	s.log.Info().
		Int("revenue_types", len(result.RevenueTypes)).
		Int("accounts", len(result.Accounts)).
		Msg("seed complete")
	return result, nil
}
