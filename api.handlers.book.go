package main

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// GetAllBooks responds with every stored book.
func (api *APIHandler) GetAllBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	logger := api.GetLoggerFromContext(r.Context())
	books, err := api.bookService.FindAll(r.Context())
	if err != nil {
		logger.Error("failed to get all books", zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to get all books", EmptyData)
		if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}
	logger.Info("success to get all books", zap.Int("books.total", len(books)))
	if err = WriteResponse(r.Context(), w, http.StatusOK, books); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// GetOneBook responds with the book identified in the path or 404.
func (api *APIHandler) GetOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	logger := api.GetLoggerFromContext(r.Context())
	id, err := ParseBookID(ps.ByName("id"))
	if err != nil {
		api.badBookID(w, r, err)
		return
	}

	book, err := api.bookService.FindByID(r.Context(), id)
	if errors.Is(err, ErrBookNotFound) {
		logger.Info("book does not exist", zap.Int64("book.id", id))
		if err = WriteEmptyResponse(r.Context(), w, http.StatusNotFound); err != nil {
			logger.Error("failed to send response", zap.Error(err))
		}
		return
	}
	if err != nil {
		logger.Error("failed to get book", zap.Int64("book.id", id), zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to get the book", EmptyData)
		if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}
	logger.Info("success to get book", zap.Int64("book.id", id))
	if err = WriteResponse(r.Context(), w, http.StatusOK, book); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// CreateBook registers a new book. The payload must not carry an id.
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var book Book
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	logger := api.GetLoggerFromContext(r.Context())
	if err := DecodeBookRequestBody(w, r, &book); err != nil {
		logger.Error("failed to create book", zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusBadRequest, "failed to create the book", err.Error())
		if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}

	if book.HasID() {
		logger.Info("book creation rejected: id must not be provided", zap.Int64("book.id", book.GetID()))
		if err := WriteEmptyResponse(r.Context(), w, http.StatusBadRequest); err != nil {
			logger.Error("failed to send response", zap.Error(err))
		}
		return
	}

	saved, err := api.bookService.Save(r.Context(), book)
	if err != nil {
		logger.Error("failed to create book", zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to create the book", EmptyData)
		if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}
	logger.Info("success to create book", zap.Int64("book.id", saved.GetID()))
	if err = WriteResponse(r.Context(), w, http.StatusOK, saved); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// UpdateBook fully replaces an existing book. The payload must carry the id.
func (api *APIHandler) UpdateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var book Book
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	logger := api.GetLoggerFromContext(r.Context())
	if err := DecodeBookRequestBody(w, r, &book); err != nil {
		logger.Error("failed to update book", zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusBadRequest, "failed to update the book", err.Error())
		if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}

	if !book.HasID() {
		logger.Info("book update rejected: id is required")
		if err := WriteEmptyResponse(r.Context(), w, http.StatusBadRequest); err != nil {
			logger.Error("failed to send response", zap.Error(err))
		}
		return
	}

	_, err := api.bookService.FindByID(r.Context(), book.GetID())
	if errors.Is(err, ErrBookNotFound) {
		logger.Info("book does not exist", zap.Int64("book.id", book.GetID()))
		if err = WriteEmptyResponse(r.Context(), w, http.StatusNotFound); err != nil {
			logger.Error("failed to send response", zap.Error(err))
		}
		return
	}
	if err != nil {
		logger.Error("failed to check if the book exist", zap.Int64("book.id", book.GetID()), zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to check if the book exist", EmptyData)
		if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}

	saved, err := api.bookService.Update(r.Context(), book)
	if errors.Is(err, ErrBookNotFound) {
		logger.Info("book deleted before update", zap.Int64("book.id", book.GetID()))
		if err = WriteEmptyResponse(r.Context(), w, http.StatusNotFound); err != nil {
			logger.Error("failed to send response", zap.Error(err))
		}
		return
	}
	if err != nil {
		logger.Error("failed to update book", zap.Int64("book.id", book.GetID()), zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to update the book", EmptyData)
		if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}
	logger.Info("success to update book", zap.Int64("book.id", saved.GetID()))
	if err = WriteResponse(r.Context(), w, http.StatusOK, saved); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// DeleteAllBooks empties the storage.
func (api *APIHandler) DeleteAllBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	logger := api.GetLoggerFromContext(r.Context())
	if err := api.bookService.DeleteAll(r.Context()); err != nil {
		logger.Error("failed to delete all books", zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to delete all books", EmptyData)
		if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}
	logger.Info("success to delete all books")
	if err := WriteEmptyResponse(r.Context(), w, http.StatusNoContent); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

// DeleteOneBook removes the book identified in the path after checking it exists.
func (api *APIHandler) DeleteOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	logger := api.GetLoggerFromContext(r.Context())
	id, err := ParseBookID(ps.ByName("id"))
	if err != nil {
		api.badBookID(w, r, err)
		return
	}

	_, err = api.bookService.FindByID(r.Context(), id)
	if err == nil {
		err = api.bookService.DeleteByID(r.Context(), id)
	}
	// the book may vanish between the check and the removal.
	if errors.Is(err, ErrBookNotFound) {
		logger.Info("book does not exist", zap.Int64("book.id", id))
		if err = WriteEmptyResponse(r.Context(), w, http.StatusNotFound); err != nil {
			logger.Error("failed to send response", zap.Error(err))
		}
		return
	}
	if err != nil {
		logger.Error("failed to delete book", zap.Int64("book.id", id), zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to delete the book", EmptyData)
		if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}
	logger.Info("success to delete book", zap.Int64("book.id", id))
	if err = WriteEmptyResponse(r.Context(), w, http.StatusNoContent); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}

func (api *APIHandler) badBookID(w http.ResponseWriter, r *http.Request, err error) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	logger := api.GetLoggerFromContext(r.Context())
	logger.Error("book id provided is not valid", zap.Error(err))
	errResp := NewAPIError(requestID, http.StatusBadRequest, "book id provided is not valid", EmptyData)
	if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
		logger.Error("failed to send error response", zap.Error(err))
	}
}
