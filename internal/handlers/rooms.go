// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jason-s-yu/typerace/internal/race"
)

// RoomAvailabilityPattern is the ServeMux pattern RoomAvailabilityHandler is mounted on.
const RoomAvailabilityPattern = "GET /rooms/{id}/available"

// RoomAvailabilityHandler responds with {"room": id, "available": bool}. It answers the
// same question as check_game_availability, for link previews.
func RoomAvailabilityHandler(store *race.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.PathValue("id")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"room":      roomID,
			"available": store.IsJoinable(roomID),
		})
	}
}
