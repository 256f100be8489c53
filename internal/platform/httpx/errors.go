package httpx

import (
	"net/http"

	"github.com/fakturo/fakturo/internal/shared"
)

// RespondError maps classified service errors to HTTP responses. Validation,
// not-found and authorization faults carry their message to the client;
// consistency faults and anything unclassified surface as a generic server
// fault so internals never leak. The request GUID lets operators correlate
// the response with the high-severity log line.
func RespondError(w http.ResponseWriter, guid string, err error) {
	switch shared.KindOf(err) {
	case shared.KindValidation:
		Problem(w, http.StatusBadRequest, "Validation Failed", withGUID(err.Error(), guid))
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "Not Found", withGUID(err.Error(), guid))
	case shared.KindAuthorization:
		Problem(w, http.StatusForbidden, "Forbidden", withGUID(err.Error(), guid))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", withGUID("", guid))
	}
}

func withGUID(detail, guid string) string {
	if guid == "" {
		return detail
	}
	if detail == "" {
		return "(" + guid + ")"
	}
	return detail + " (" + guid + ")"
}
