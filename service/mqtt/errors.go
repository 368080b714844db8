package mqtt

import "github.com/pkg/errors"

var (
	// ConnectTimeoutError indicates the broker did not answer in time.
	ConnectTimeoutError = errors.New("mqtt connect timeout")
	IsConnectTimeout    = isErrorFunc(ConnectTimeoutError)
	// SubscriptionClosedError indicates a read on a closed subscription.
	SubscriptionClosedError = errors.New("subscription closed")
	IsSubscriptionClosed    = isErrorFunc(SubscriptionClosedError)

	maskAny = errors.WithStack
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
