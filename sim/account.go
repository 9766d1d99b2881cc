package sim

// Account is the simulated cash account for one session. Fills may drive the
// balance negative: margin is not modeled, and orders are never rejected for
// insufficient funds. Withdraw is the only balance-checked operation.
type Account struct {
	Balance        float64
	InitialBalance float64
	RealizedPnL    float64
}

func NewAccount(balance float64) *Account {
	return &Account{
		Balance:        balance,
		InitialBalance: balance,
	}
}

func (a *Account) Deposit(amount float64) {
	if amount <= 0 {
		return
	}
	a.Balance += amount
}

// Withdraw removes amount from the balance. It fails (returns false) when
// amount exceeds the balance or is not positive.
func (a *Account) Withdraw(amount float64) bool {
	if amount <= 0 || amount > a.Balance {
		return false
	}
	a.Balance -= amount
	return true
}

// Reset restores the account to a fresh state with the given balance.
func (a *Account) Reset(balance float64) {
	a.Balance = balance
	a.InitialBalance = balance
	a.RealizedPnL = 0
}
