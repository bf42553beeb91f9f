package config

import "github.com/MakeNowJust/heredoc"

// Sample is an example configuration with every option and its default.
var Sample = heredoc.Doc(`
	cloudflare:
	  # or set CDNOPT_API_TOKEN
	  api_token: ""
	  zone_id: ""
	  record_id: ""
	  domain: cdn.example.com
	  update_dns: false
	  ttl: 1
	  proxied: true

	cdn:
	  cidr_list:
	    - 173.245.48.0/20
	    - 103.21.244.0/22
	    - 104.16.0.0/24

	optimization:
	  ping_threads: 64
	  ping_timeout: 6s
	  top_ips_to_save: 10
	  run_interval_seconds: 3600
	  debug: false
	  output_file: fastest_cdn_ips.txt
	  max_addresses: 65536

	metrics:
	  port: 0
`)
