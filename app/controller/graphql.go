package controller

import (
	"github.com/playshelf/playshelf-api/app/graph"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"github.com/labstack/echo/v4"
)

type GraphQLController struct {
	handler *relay.Handler
}

func NewGraphQLController(resolver *graph.Resolver) (*GraphQLController, error) {
	schema, err := graphql.ParseSchema(graph.Schema, resolver)
	if err != nil {
		return nil, err
	}
	return &GraphQLController{handler: &relay.Handler{Schema: schema}}, nil
}

// Handle bridges echo to the relay handler. The response writer rides along
// in the context so mutation resolvers can set the refresh cookie.
func (c *GraphQLController) Handle(ctx echo.Context) error {
	req := ctx.Request()
	req = req.WithContext(graph.WithResponse(req.Context(), ctx.Response()))
	c.handler.ServeHTTP(ctx.Response(), req)
	return nil
}
