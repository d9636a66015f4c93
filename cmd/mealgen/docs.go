package main

// General API documentation for swaggo. Run `swag init -g cmd/mealgen/docs.go` to generate docs.
//
// @title           mealgen API
// @version         1.0
// @description     Generates a week of meals and streams recipes, images and a grocery list as they become ready.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
