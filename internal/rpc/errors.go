package rpc

import (
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/gateway-ledger/internal/ledger"
)

func codeFor(kind ledger.Kind) codes.Code {
	switch kind {
	case ledger.KindValidation:
		return codes.InvalidArgument
	case ledger.KindUnknownAccount, ledger.KindNotFound:
		return codes.NotFound
	case ledger.KindDuplicateCode, ledger.KindDuplicatePosting:
		return codes.AlreadyExists
	case ledger.KindInsufficientBalance, ledger.KindUnbalancedEntry, ledger.KindIntegrityHalt:
		return codes.FailedPrecondition
	case ledger.KindReservationFailure:
		return codes.Unavailable
	}
	return codes.Internal
}

// toStatus converts a ledger error to a status carrying the user-safe
// message. The kind is prefixed so clients can branch on it.
func toStatus(logger *slog.Logger, op string, err error) error {
	kind := ledger.KindOf(err)
	code := codeFor(kind)
	if code == codes.Internal {
		logger.Error("grpc_operation_failed", "op", op, "kind", string(kind), "err", err)
	}
	return status.Error(code, string(kind)+": "+ledger.UserMessage(err))
}

func invalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, string(ledger.KindValidation)+": "+msg)
}
