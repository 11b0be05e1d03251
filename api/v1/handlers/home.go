package handlers

import (
	"net/http"

	"github.com/GHutch55/fastzero/api/v1/models"
)

const olaPage = `<html>
  <head>
    <title>Nosso olá mundo!</title>
  </head>
  <body>
    <h1> Olá Mundo </h1>
  </body>
</html>`

func HomeHandler(w http.ResponseWriter, r *http.Request) {
	SendJSON(w, models.Message{Message: "Olá Mundo!"}, http.StatusOK)
}

func OlaHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(olaPage))
}
