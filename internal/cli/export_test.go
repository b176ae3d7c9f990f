package cli

var RootCmd = rootCmd
