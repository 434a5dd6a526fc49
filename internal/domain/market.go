package domain

// Token identifies one of the two outcome tokens of a binary market.
type Token string

const (
	TokenYes Token = "YES"
	TokenNo  Token = "NO"
)

// CollateralAssetID is the ledger key for the collateral asset (USDC).
// Outcome tokens are keyed by their CLOB token ID.
const CollateralAssetID = "collateral"

// Complement returns the opposite outcome token.
func (t Token) Complement() Token {
	if t == TokenYes {
		return TokenNo
	}
	return TokenYes
}

// Market is a single binary Polymarket market the keeper quotes on.
type Market struct {
	ConditionID string
	TokenIDs    map[Token]string // outcome -> CLOB token ID
}

// NewMarket builds a Market from a condition ID and the YES/NO token IDs.
func NewMarket(conditionID, yesTokenID, noTokenID string) Market {
	return Market{
		ConditionID: conditionID,
		TokenIDs: map[Token]string{
			TokenYes: yesTokenID,
			TokenNo:  noTokenID,
		},
	}
}

// TokenID returns the CLOB token ID for the given outcome.
func (m Market) TokenID(t Token) string {
	return m.TokenIDs[t]
}

// Token resolves a CLOB token ID back to its outcome.
func (m Market) Token(tokenID string) (Token, error) {
	for t, id := range m.TokenIDs {
		if id == tokenID {
			return t, nil
		}
	}
	return "", ErrNoMarket
}

// Assets returns every ledger asset this market touches: collateral plus
// both outcome token IDs.
func (m Market) Assets() []string {
	return []string{CollateralAssetID, m.TokenIDs[TokenYes], m.TokenIDs[TokenNo]}
}
