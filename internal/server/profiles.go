package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/learning152/ui-tars-launcher/internal/profile"
)

func (r *Router) handleProfileList(c *gin.Context) {
	ps, err := r.deps.Profiles.Filter(c.Query("q"), profile.Provider(c.Query("provider")))
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	writeJSON(c, http.StatusOK, ps)
}

func (r *Router) handleProfileGet(c *gin.Context) {
	p, err := r.deps.Profiles.Get(c.Param("id"))
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (r *Router) handleProfileSave(c *gin.Context) {
	var p profile.Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		writeJSON(c, http.StatusBadRequest, result{Error: "invalid JSON: " + err.Error()})
		return
	}
	if p.Name == "" {
		writeJSON(c, http.StatusBadRequest, result{Error: "name required"})
		return
	}
	saved, err := r.deps.Profiles.Save(p)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	writeJSON(c, http.StatusOK, saved)
}

func (r *Router) handleProfileDelete(c *gin.Context) {
	if err := r.deps.Profiles.Delete(c.Param("id")); err != nil {
		fail(c, statusOf(err), err)
		return
	}
	writeJSON(c, http.StatusOK, result{Success: true})
}

func (r *Router) handleProfileDefault(c *gin.Context) {
	if err := r.deps.Profiles.SetDefault(c.Param("id")); err != nil {
		fail(c, statusOf(err), err)
		return
	}
	writeJSON(c, http.StatusOK, result{Success: true})
}

func (r *Router) handleProfileDuplicate(c *gin.Context) {
	p, err := r.deps.Profiles.Duplicate(c.Param("id"))
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (r *Router) handleProfileStats(c *gin.Context) {
	st, err := r.deps.Profiles.Stats()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleProfileExport(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="configs.json"`)
	c.Status(http.StatusOK)
	if err := r.deps.Profiles.Export(c.Writer); err != nil {
		r.log.Warn("profile export failed", "error", err)
	}
}

func (r *Router) handleProfileImport(c *gin.Context) {
	ps, err := r.deps.Profiles.Import(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	writeJSON(c, http.StatusOK, ps)
}
