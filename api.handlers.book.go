package main

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// CreateBook adds a book to the catalog. The id may be provided as a catalog
// code like `LIB-001`, otherwise one is generated.
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	book := Book{}
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	err := DecodeCreateOrUpdateBookRequestBody(r, &book)
	if err != nil {
		errResp := NewAPIError(requestID, http.StatusBadRequest, "failed to create the book", book)
		api.sendError(w, r, errResp, "failed to create book", err)
		return
	}

	err = api.validator.ValidateCreateBookRequestBody(&book)
	if err != nil {
		errResp := NewAPIError(requestID, http.StatusBadRequest, "failed to create the book", err.Error())
		api.sendError(w, r, errResp, "failed to create book", err)
		return
	}

	if book.ID == "" {
		book.ID = api.idsHandler.Generate(BookIDPrefix)
	}

	now := api.clock.Now().UTC().String()
	book.CreatedAt = now
	book.UpdatedAt = now
	book.Status = StatusAvailable

	err = api.bookService.Add(r.Context(), book.ID, book)
	if errors.Is(err, ErrBookExists) {
		errResp := NewAPIError(requestID, http.StatusConflict, "book id already exists", book)
		api.sendError(w, r, errResp, "failed to create book", err, zap.String("book.id", book.ID))
		return
	}
	if err != nil {
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to create the book", book)
		api.sendError(w, r, errResp, "failed to create book", err)
		return
	}
	api.logger.Info("success to create book", zap.String("book.id", book.ID), zap.String("request.id", requestID))
	api.sendResponse(w, r, GenericResponse(requestID, http.StatusCreated, "Book created successfully.", nil, book))
}

func (api *APIHandler) GetAllBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	api.extendWriteDeadline(w, requestID)

	books, err := api.bookService.GetAll(r.Context())
	if err != nil {
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to get all books", books)
		api.sendError(w, r, errResp, "failed to get all books", err)
		return
	}
	api.logger.Info("success to get all books", zap.String("request.id", requestID))
	total := len(books)
	api.sendResponse(w, r, GenericResponse(requestID, http.StatusOK, "All books fetched successfully.", &total, books))
}

// validBookID sends a 400 response and returns false when the id is malformed.
func (api *APIHandler) validBookID(w http.ResponseWriter, r *http.Request, id string) bool {
	if api.idsHandler.IsValid(id, BookIDPrefix) {
		return true
	}
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	errResp := NewAPIError(requestID, http.StatusBadRequest, "book id provided is not valid", Book{})
	api.sendError(w, r, errResp, "book id provided is not valid", errors.New("invalid book id"), zap.String("book.id", id))
	return false
}

// getBook reads through the view cache when there is one.
func (api *APIHandler) getBook(r *http.Request, id string) (Book, error) {
	if api.cache != nil {
		return api.cache.GetBook(r.Context(), id)
	}
	return api.bookService.GetOne(r.Context(), id)
}

func (api *APIHandler) GetOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	id := ps.ByName("id")
	if !api.validBookID(w, r, id) {
		return
	}
	book, err := api.getBook(r, id)
	if errors.Is(err, ErrBookNotFound) {
		errResp := NewAPIError(requestID, http.StatusNotFound, "book does not exist", book)
		api.sendError(w, r, errResp, "book does not exist", err, zap.String("book.id", id))
		return
	}
	if err != nil {
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to get the book", book)
		api.sendError(w, r, errResp, "failed to get book", err, zap.String("book.id", id))
		return
	}
	api.logger.Info("success to get book", zap.String("book.id", id), zap.String("request.id", requestID))
	api.sendResponse(w, r, GenericResponse(requestID, http.StatusOK, "Book fetched successfully.", nil, book))
}

func (api *APIHandler) DeleteOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	id := ps.ByName("id")
	if !api.validBookID(w, r, id) {
		return
	}
	book, err := api.bookService.GetOne(r.Context(), id)
	if errors.Is(err, ErrBookNotFound) {
		errResp := NewAPIError(requestID, http.StatusNotFound, "book does not exist", book)
		api.sendError(w, r, errResp, "book does not exist", err, zap.String("book.id", id))
		return
	}
	if err != nil {
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to check if the book exist", book)
		api.sendError(w, r, errResp, "failed to check if the book exist", err, zap.String("book.id", id))
		return
	}

	err = api.bookService.Delete(r.Context(), id)
	switch {
	case errors.Is(err, ErrBookNotFound):
		errResp := NewAPIError(requestID, http.StatusNotFound, "book does not exist", book)
		api.sendError(w, r, errResp, "book does not exist", err, zap.String("book.id", id))
		return
	case errors.Is(err, ErrBookReserved):
		errResp := NewAPIError(requestID, http.StatusConflict, "book is currently reserved", book)
		api.sendError(w, r, errResp, "failed to delete book", err, zap.String("book.id", id))
		return
	case err != nil:
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to delete the book", book)
		api.sendError(w, r, errResp, "failed to delete book", err, zap.String("book.id", id))
		return
	}
	api.invalidate(id, "handler")
	api.logger.Info("success to delete book", zap.String("book.id", id), zap.String("request.id", requestID))
	api.sendResponse(w, r, GenericResponse(requestID, http.StatusOK, "Book deleted successfully.", nil, book))
}

// UpdateBook replaces the catalog fields of the book identified in the path.
func (api *APIHandler) UpdateBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var book Book
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	id := ps.ByName("id")
	if !api.validBookID(w, r, id) {
		return
	}
	err := DecodeCreateOrUpdateBookRequestBody(r, &book)
	if err != nil {
		errResp := NewAPIError(requestID, http.StatusBadRequest, "failed to update the book", book)
		api.sendError(w, r, errResp, "failed to update book", err)
		return
	}

	if book.ID == "" {
		book.ID = id
	}
	if book.ID != id {
		errResp := NewAPIError(requestID, http.StatusBadRequest, "failed to update the book", "id does not match the path")
		api.sendError(w, r, errResp, "failed to update book", errors.New("book id mismatch"), zap.String("book.id", id))
		return
	}

	err = api.validator.ValidateUpdateBookRequestBody(&book)
	if err != nil {
		errResp := NewAPIError(requestID, http.StatusBadRequest, "failed to update the book", err.Error())
		api.sendError(w, r, errResp, "failed to update book", err)
		return
	}

	book, err = api.bookService.Update(r.Context(), id, book)
	if err != nil {
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to update the book", book)
		api.sendError(w, r, errResp, "failed to update book", err, zap.String("book.id", id))
		return
	}
	api.invalidate(id, "handler")
	api.logger.Info("success to update book", zap.String("book.id", book.ID), zap.String("request.id", requestID))
	api.sendResponse(w, r, GenericResponse(requestID, http.StatusOK, "Book updated successfully.", nil, book))
}

// invalidate drops the cached views of a book after a local write.
func (api *APIHandler) invalidate(bookID, source string) {
	if api.cache != nil {
		api.cache.Invalidate(bookID, source)
	}
}
