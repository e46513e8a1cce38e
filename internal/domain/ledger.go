package domain

import (
	"fmt"
	"time"
)

// TransferType enumerates the closed set of completed-transfer kinds.
type TransferType string

const (
	TransferPermanent         TransferType = "permanent"
	TransferLoan              TransferType = "loan"
	TransferLoanWithOption    TransferType = "loan_with_option"
	TransferLoanWithObligation TransferType = "loan_with_obligation"
	TransferFree              TransferType = "free_transfer"
	TransferContractExpiry    TransferType = "contract_expiry"
	TransferYouthPromotion    TransferType = "youth_promotion"
	TransferRetirement        TransferType = "retirement"
)

func (t TransferType) Valid() bool {
	switch t {
	case TransferPermanent, TransferLoan, TransferLoanWithOption, TransferLoanWithObligation,
		TransferFree, TransferContractExpiry, TransferYouthPromotion, TransferRetirement:
		return true
	}
	return false
}

// TransferEvent is an immutable ledger row. Corrections append a new
// row and flip IsSuperseded on the old one; rows are never rewritten.
type TransferEvent struct {
	EventID            string       `db:"event_id" json:"event_id"`
	PlayerID           string       `db:"player_id" json:"player_id"`
	FromClubID         *string      `db:"from_club_id" json:"from_club_id,omitempty"`
	ToClubID           string       `db:"to_club_id" json:"to_club_id"`
	TransferType       TransferType `db:"transfer_type" json:"transfer_type"`
	TransferDate       time.Time    `db:"transfer_date" json:"transfer_date"`
	FeeAmount          *float64     `db:"fee_amount" json:"fee_amount,omitempty"`
	FeeCurrency        *string      `db:"fee_currency" json:"fee_currency,omitempty"`
	FeeAmountEUR       *float64     `db:"fee_amount_eur" json:"fee_amount_eur,omitempty"`
	FeeType            string       `db:"fee_type" json:"fee_type"`
	ContractStart      *time.Time   `db:"contract_start" json:"contract_start,omitempty"`
	ContractEnd        *time.Time   `db:"contract_end" json:"contract_end,omitempty"`
	LoanEndDate        *time.Time   `db:"loan_end_date" json:"loan_end_date,omitempty"`
	OptionToBuy        bool         `db:"option_to_buy" json:"option_to_buy"`
	OptionAmount       *float64     `db:"option_amount" json:"option_amount,omitempty"`
	ObligationToBuy    bool         `db:"obligation_to_buy" json:"obligation_to_buy"`
	ObligationAmount   *float64     `db:"obligation_amount" json:"obligation_amount,omitempty"`
	SellOnPercent      *float64     `db:"sell_on_percent" json:"sell_on_percent,omitempty"`
	BuyBackClause      bool         `db:"buy_back_clause" json:"buy_back_clause"`
	BuyBackAmount      *float64     `db:"buy_back_amount" json:"buy_back_amount,omitempty"`
	Source             string       `db:"source" json:"source"`
	SourceConfidence   float64      `db:"source_confidence" json:"source_confidence"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	IsSuperseded       bool         `db:"is_superseded" json:"is_superseded"`
	SupersededBy       *string      `db:"superseded_by" json:"superseded_by,omitempty"`
}

// Validate enforces the write-side invariants: transfer_type is
// a closed enum, source_confidence and sell_on_percent are in-range.
func (e TransferEvent) Validate() error {
	if !e.TransferType.Valid() {
		return fmt.Errorf("invalid transfer_type: %s", e.TransferType)
	}
	if e.SourceConfidence < 0 || e.SourceConfidence > 1 {
		return fmt.Errorf("source_confidence out of range [0,1]: %f", e.SourceConfidence)
	}
	if e.SellOnPercent != nil && (*e.SellOnPercent < 0 || *e.SellOnPercent > 100) {
		return fmt.Errorf("sell_on_percent out of range [0,100]: %f", *e.SellOnPercent)
	}
	return nil
}

// DeterministicEventID builds the TL-YYYYMMDD-<player-short>-<from-short|ORIGIN>
// event_id. shortCode truncates/normalizes an ID into a
// short uppercase token; callers pass the same shortener for player and
// club so collisions are a policy decision of the caller, not this helper.
func DeterministicEventID(transferDate time.Time, playerShort, fromShort string) string {
	from := fromShort
	if from == "" {
		from = "ORIGIN"
	}
	return fmt.Sprintf("TL-%s-%s-%s", transferDate.Format("20060102"), playerShort, from)
}
