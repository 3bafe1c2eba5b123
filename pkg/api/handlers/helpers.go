package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/marmos91/dapagg/pkg/api"
	"github.com/marmos91/dapagg/pkg/problemdetails"
)

// writeJSON encodes resp as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, resp api.Response) {
	api.JSON(w, status, resp)
}

// writeProblem encodes err as an application/problem+json document, the
// client-facing error shape used by the DAP endpoints (§6.4). Admin
// endpoints use the plain api.Response error shape below instead.
func writeProblem(w http.ResponseWriter, err error, instance string) {
	doc, status := problemdetails.FromError(err, instance)
	problemdetails.Write(w, doc, status)
}

func okResponse(data interface{}) api.Response { return api.OKResponse(data) }

func healthyResponse(data interface{}) api.Response { return api.HealthyResponse(data) }

func unhealthyResponse(errMsg string) api.Response { return api.UnhealthyResponse(errMsg) }

func unhealthyResponseWithData(data interface{}) api.Response {
	resp := api.UnhealthyResponse("one or more dependencies are unhealthy")
	resp.Data = data
	return resp
}

// decodeJSONBody decodes a JSON request body into v. Writes a 400 and
// returns false on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "invalid request body")
		return false
	}
	return true
}

// BadRequest writes a generic 400 Response.
func BadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, api.ErrorResponse(msg))
}

// NotFound writes a generic 404 Response.
func NotFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, api.ErrorResponse(msg))
}

// Conflict writes a generic 409 Response.
func Conflict(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusConflict, api.ErrorResponse(msg))
}

// InternalServerError writes a generic 500 Response.
func InternalServerError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusInternalServerError, api.ErrorResponse(msg))
}

// Unauthorized writes a generic 401 Response.
func Unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, api.ErrorResponse(msg))
}
