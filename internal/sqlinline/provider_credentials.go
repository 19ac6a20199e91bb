package sqlinline

const QSelectProviderCredential = `--sql 3c1f7d2a-5e64-4b8f-9a0d-6b2e81c4f915
select api_key
from provider_credentials
where provider = $1::text
limit 1;
`

const QUpsertProviderCredential = `--sql 9e47b0c3-21d8-4f6a-b5c2-7d13a8e96f04
insert into provider_credentials (provider, api_key, created_at, updated_at)
values ($1::text, $2::text, now(), now())
on conflict (provider) do update set
    api_key = excluded.api_key,
    updated_at = now();
`
