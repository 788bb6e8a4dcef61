package backend

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/classbase/classbase/core/access"
	"github.com/classbase/classbase/core/logger"
)

// classStatistics represents information about one class table
type classStatistics struct {
	Class        string  `json:"class"`
	Count        int64   `json:"count"`
	SizeMB       float64 `json:"size_mb"`
	AverageSizeB float64 `json:"average_size_b"`
}

// statisticsDetails represents information about the backend classes
type statisticsDetails struct {
	Classes []classStatistics `json:"classes"`
}

func (b *Backend) handleStatistics(router *mux.Router) {
	logger.Default().Debugln("  handle statistics route: /classbase/statistics GET")
	router.HandleFunc("/classbase/statistics", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.statisticsWithAuth(w, r)
	}).Methods(http.MethodOptions, http.MethodGet)
}

func (b *Backend) statisticsWithAuth(w http.ResponseWriter, r *http.Request) {
	meta := access.MetadataFromContext(r.Context())
	if meta == nil || !meta.Master {
		http.Error(w, "not authorized", http.StatusUnauthorized)
		return
	}

	var classes sort.StringSlice = b.Registry.Names()
	// sorted so the response is stable regardless of configuration order
	classes.Sort()

	s := statisticsDetails{Classes: []classStatistics{}}
	for _, class := range classes {
		table := fmt.Sprintf(`%s."class/%s"`, b.db.Schema, class)
		row := b.db.QueryRow(fmt.Sprintf(`SELECT pg_total_relation_size('%s'), count(*) FROM %s`, table, table))
		var size, count int64
		if err := row.Scan(&size, &count); err != nil {
			logger.FromContext(r.Context()).WithError(err).Errorln("cannot collect statistics for", class)
			http.Error(w, "cannot collect statistics", http.StatusInternalServerError)
			return
		}
		var averageSize float64
		if count != 0 {
			averageSize = float64(size / count)
		}
		s.Classes = append(s.Classes, classStatistics{
			Class:        class,
			Count:        count,
			SizeMB:       float64(size) / 1024. / 1024.,
			AverageSizeB: averageSize,
		})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	jsonData, _ := json.Marshal(s)
	w.Write(jsonData)
}
