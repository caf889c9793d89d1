package main

import (
	"context"
	"errors"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/lru"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"gitea.kood.tech/petrkubec/dev-radar/backend/graph"
	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

// newGraphQLServer serves the read-only graph schema over GET and POST.
func newGraphQLServer(resolver *graph.Resolver, metrics *Metrics) *handler.Server {
	srv := handler.New(graph.NewExecutableSchema(graph.Config{
		Resolvers: resolver,
	}))

	srv.AddTransport(transport.GET{})
	srv.AddTransport(transport.POST{})
	srv.SetQueryCache(lru.New[*ast.QueryDocument](1000))
	srv.Use(extension.Introspection{})

	srv.SetErrorPresenter(presentGraphQLError)
	srv.AroundResponses(func(ctx context.Context, next graphql.ResponseHandler) *graphql.Response {
		resp := next(ctx)
		countOperation(metrics, resp)
		return resp
	})
	return srv
}

// presentGraphQLError exposes radar errors by message and kind. Anything else is logged.
func presentGraphQLError(ctx context.Context, err error) *gqlerror.Error {
	gqlErr := graphql.DefaultErrorPresenter(ctx, err)

	var re *radar.Error
	if !errors.As(err, &re) {
		var plain *gqlerror.Error
		if !errors.As(err, &plain) {
			loggerFromContext(ctx).Error().Err(err).Msg("graphql resolver failed")
		}
		return gqlErr
	}
	gqlErr.Message = re.Message
	if gqlErr.Extensions == nil {
		gqlErr.Extensions = map[string]any{}
	}
	gqlErr.Extensions["code"] = string(re.Kind)
	return gqlErr
}

// countOperation labels a response ok, partial when it carries data and errors, or invalid
// when it was rejected before execution.
func countOperation(metrics *Metrics, resp *graphql.Response) {
	switch {
	case resp == nil:
	case len(resp.Errors) == 0:
		metrics.GraphQLOperations.WithLabelValues("ok").Inc()
	case resp.Data == nil:
		metrics.GraphQLOperations.WithLabelValues("invalid").Inc()
	default:
		metrics.GraphQLOperations.WithLabelValues("partial").Inc()
	}
}
