package graph

// Schema is the auth-facing GraphQL surface. Game CRUD lives with the
// collection service and is not part of this API's schema.
const Schema = `
	schema {
		query: Query
		mutation: Mutation
	}

	type Query {
		me: User
		sharedCollection(shareId: String!): SharedCollection
	}

	type Mutation {
		register(name: String!, email: String!, password: String!): AuthPayload!
		login(email: String!, password: String!): AuthPayload!
		generateShareLink: ShareLinkPayload!
	}

	type User {
		id: ID!
		name: String!
		email: String!
		avatar: String
	}

	type Auth {
		token: String!
		user: User!
	}

	type AuthPayload {
		success: Boolean!
		message: String!
		error: String
		auth: Auth
	}

	type ShareLinkPayload {
		success: Boolean!
		message: String!
		url: String
	}

	type SharedCollection {
		shareId: String!
		owner: User!
	}
`
