package eventmodels

import "fmt"

type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

func (o OptionType) Validate() error {
	if o != Call && o != Put {
		return fmt.Errorf("OptionType: Validate: invalid option type: %s", o)
	}

	return nil
}

// Sign is +1 for calls and -1 for puts.
func (o OptionType) Sign() float64 {
	if o == Put {
		return -1
	}

	return 1
}
