package api

import (
	"github.com/mediahub/postpipe/app/database"
	"github.com/mediahub/postpipe/app/lifecycle"
)

type Handler struct {
	contentRepo database.ContentRepository
	postRepo    database.PostRepository
	lifecycle   *lifecycle.Service
	version     string
}
