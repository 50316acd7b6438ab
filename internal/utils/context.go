package utils

import (
	"context"

	"github.com/gin-gonic/gin"
)

type CustomContext struct {
	AppSource string
	AccountId string
	UserId    string
}

type customContextKeyType string

const customContextKey customContextKeyType = "CUSTOM_CONTEXT"

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource string) context.Context {
	customContext := &CustomContext{
		AppSource: appSource,
		AccountId: c.Param("id"),
		UserId:    c.Param("userId"),
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAppSourceFromContext(ctx context.Context) string {
	return GetContext(ctx).AppSource
}

func GetAccountIdFromContext(ctx context.Context) string {
	return GetContext(ctx).AccountId
}

func GetUserIdFromContext(ctx context.Context) string {
	return GetContext(ctx).UserId
}

// SetAccountIdInContext returns a derived context; the parent's value is left untouched.
func SetAccountIdInContext(ctx context.Context, accountId string) context.Context {
	customContext := *GetContext(ctx)
	customContext.AccountId = accountId
	return WithCustomContext(ctx, &customContext)
}

func SetAppSourceInContext(ctx context.Context, appSource string) context.Context {
	customContext := *GetContext(ctx)
	customContext.AppSource = appSource
	return WithCustomContext(ctx, &customContext)
}
