package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// city is an entry of the static location catalog.
type city struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Default bool   `json:"default,omitempty"`
}

// The catalog is static: Cuban provinces plus the "all" sentinel, and the
// neighborhoods of the capital. Clients build their pickers from this.
var (
	cities = []city{
		{ID: "la-habana", Name: "Habana", Default: true},
		{ID: "santiago-de-cuba", Name: "Santiago de Cuba"},
		{ID: "camaguey", Name: "Camagüey"},
		{ID: "holguin", Name: "Holguín"},
		{ID: "santa-clara", Name: "Santa Clara"},
		{ID: "guantanamo", Name: "Guantánamo"},
		{ID: "bayamo", Name: "Bayamo"},
		{ID: "cienfuegos", Name: "Cienfuegos"},
		{ID: "pinar-del-rio", Name: "Pinar del Río"},
		{ID: "matanzas", Name: "Matanzas"},
		{ID: "las-tunas", Name: "Las Tunas"},
		{ID: "sancti-spiritus", Name: "Sancti Spíritus"},
		{ID: "ciiego-de-avila", Name: "Ciego de Ávila"},
		{ID: "villa-clara", Name: "Villa Clara"},
		{ID: "artemisa", Name: "Artemisa"},
		{ID: "mayabeque", Name: "Mayabeque"},
		{ID: "isla-de-la-juventud", Name: "Isla de la Juventud"},
		{ID: "all", Name: "Toda Cuba"},
	}

	neighborhoods = map[string][]string{
		"la-habana": {
			"Vedado", "Centro Habana", "Habana Vieja", "Miramar", "Playa",
			"Cerro", "Diez de Octubre", "San Miguel del Padrón", "Boyeros",
			"Arroyo Naranjo", "Cotorro", "Habana del Este", "Marianao",
			"La Lisa", "Guanabacoa", "Regla",
		},
	}
)

// ListCities handles GET /cities.
func (h *Handlers) ListCities(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{
		"cities":        cities,
		"neighborhoods": neighborhoods,
	})
}
