package ussd

// Bank is one entry of the withdrawal bank menu.
type Bank struct {
	Choice string
	Code   string
	Name   string
}

// DefaultBanks is the bank menu offered for withdrawals.
var DefaultBanks = []Bank{
	{Choice: "1", Code: "044", Name: "Access Bank"},
	{Choice: "2", Code: "058", Name: "Guaranty Trust Bank"},
	{Choice: "3", Code: "011", Name: "First Bank"},
	{Choice: "4", Code: "033", Name: "United Bank for Africa"},
	{Choice: "5", Code: "057", Name: "Zenith Bank"},
}

func bankCode(banks []Bank, choice string) (string, bool) {
	for _, b := range banks {
		if b.Choice == choice {
			return b.Code, true
		}
	}
	return "", false
}
